package repositories

import (
	"errors"
	"iter"

	"github.com/dgraph-io/badger/v4"
)

// Key layout shared by the repositories. Records sort by id, and ids are
// UUIDv7, so a prefix scan yields insertion order.
const (
	participantPrefix   = "participant:"
	messagePrefix       = "message:"
	usernameIndexPrefix = "idx:username:"
	unreadIndexPrefix   = "idx:unread:"
)

// Prefixes exported for tooling that walks the keyspace directly.
const (
	ParticipantPrefix   = participantPrefix
	MessagePrefix       = messagePrefix
	UsernameIndexPrefix = usernameIndexPrefix
	UnreadIndexPrefix   = unreadIndexPrefix
)

// maxTxnRetries bounds the retries of a read-write transaction that lost an
// optimistic conflict against a concurrent writer.
const maxTxnRetries = 5

func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// scan lazily walks the values under prefix in key order. Every range over
// the returned sequence opens a fresh read transaction, so it can be restarted.
func scan[T any](db *badger.DB, prefix string, decode func([]byte) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		stopped := false
		err := db.View(func(txn *badger.Txn) error {
			options := badger.DefaultIteratorOptions
			options.Prefix = []byte(prefix)
			it := txn.NewIterator(options)
			defer it.Close()

			for it.Seek(options.Prefix); it.ValidForPrefix(options.Prefix); it.Next() {
				var value T
				err := it.Item().Value(func(val []byte) error {
					var err error
					value, err = decode(val)
					return err
				})
				if err != nil {
					return err
				}
				if !yield(value, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(zero, err)
		}
	}
}

func collect[T any](seq iter.Seq2[T, error], keep func(T) bool) ([]T, error) {
	var out []T
	for value, err := range seq {
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(value) {
			out = append(out, value)
		}
	}
	return out, nil
}

func getValue[T any](txn *badger.Txn, key string, decode func([]byte) (T, error)) (T, error) {
	var value T
	item, err := txn.Get([]byte(key))
	if err != nil {
		return value, err
	}
	err = item.Value(func(val []byte) error {
		value, err = decode(val)
		return err
	})
	return value, err
}
