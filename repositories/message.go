//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"postbox/domain"
	perrors "postbox/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Insert(message domain.Message) error
	Get(id string) (domain.Message, error)
	Update(id string, mutate func(*domain.Message) error) (domain.Message, error)
	Remove(id string, check func(domain.Message) error) (domain.Message, error)
	ListAll() ([]domain.Message, error)
	FindUnreadFor(participantID string) ([]domain.Message, error)
	CountUnreadFor(participantID string) (int, error)
	ClaimUnreadFor(participantID string) ([]domain.Message, error)
	FindContaining(phrase string) ([]domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

func messageKey(id string) string { return messagePrefix + id }

// unreadKey is formatted as "idx:unread:{recipient}:{message}" so that a
// prefix scan on the recipient lists its unread messages in sending order.
func unreadKey(recipientID, messageID string) string {
	return unreadPrefix(recipientID) + messageID
}

func unreadPrefix(recipientID string) string {
	return unreadIndexPrefix + recipientID + ":"
}

func (m *MessageRepository) Insert(message domain.Message) error {
	return update(m.db, func(txn *badger.Txn) error {
		key := []byte(messageKey(message.ID))
		if _, err := txn.Get(key); err == nil {
			return perrors.ErrMessageExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, marshalMessage(message)); err != nil {
			return err
		}
		return m.syncUnreadIndex(txn, nil, &message)
	})
}

func (m *MessageRepository) Get(id string) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = getValue(txn, messageKey(id), unmarshalMessage)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, perrors.ErrNotFound
	}
	return message, err
}

// Update applies mutate to the stored message inside one transaction.
// The mutator runs against the committed state, so checks made inside it
// (ownership for instance) cannot race with another writer.
func (m *MessageRepository) Update(id string, mutate func(*domain.Message) error) (domain.Message, error) {
	var message domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		current, err := getValue(txn, messageKey(id), unmarshalMessage)
		if err != nil {
			return err
		}
		next := current
		if err = mutate(&next); err != nil {
			return err
		}
		if next.ID != current.ID || next.SenderID != current.SenderID {
			return fmt.Errorf("%w: message id and sender", perrors.ErrImmutableField)
		}
		if current.Read && !next.Read {
			return fmt.Errorf("%w: a read message cannot become unread", perrors.ErrImmutableField)
		}
		if err = txn.Set([]byte(messageKey(id)), marshalMessage(next)); err != nil {
			return err
		}
		message = next
		return m.syncUnreadIndex(txn, &current, &next)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, perrors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// Remove deletes the message permanently and returns the prior record.
// check, when set, may veto the removal after the record has been read.
func (m *MessageRepository) Remove(id string, check func(domain.Message) error) (domain.Message, error) {
	var message domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		current, err := getValue(txn, messageKey(id), unmarshalMessage)
		if err != nil {
			return err
		}
		if check != nil {
			if err = check(current); err != nil {
				return err
			}
		}
		if err = txn.Delete([]byte(messageKey(id))); err != nil {
			return err
		}
		message = current
		return m.syncUnreadIndex(txn, &current, nil)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, perrors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// All enumerates messages lazily in storage order.
func (m *MessageRepository) All() iter.Seq2[domain.Message, error] {
	return scan(m.db, messagePrefix, unmarshalMessage)
}

func (m *MessageRepository) ListAll() ([]domain.Message, error) {
	return collect(m.All(), nil)
}

// FindContaining returns messages whose body contains phrase, ignoring case.
// This is a sequential scan, not a tokenized search.
func (m *MessageRepository) FindContaining(phrase string) ([]domain.Message, error) {
	needle := strings.ToLower(phrase)
	return collect(m.All(), func(message domain.Message) bool {
		return strings.Contains(strings.ToLower(message.Body), needle)
	})
}

func (m *MessageRepository) FindUnreadFor(participantID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		messages, err = m.unreadFor(txn, participantID)
		return err
	})
	return messages, err
}

func (m *MessageRepository) CountUnreadFor(participantID string) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(unreadPrefix(participantID))
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(options.Prefix); it.ValidForPrefix(options.Prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// ClaimUnreadFor returns every unread message addressed to participantID and
// marks them read. A backlog too large for one badger transaction is claimed
// over several, and each one flips the read flag and drops the unread marker
// together. Concurrent claims conflict in badger and the loser retries, so a
// message is handed out exactly once. On failure the messages claimed by
// earlier transactions are returned with the error.
func (m *MessageRepository) ClaimUnreadFor(participantID string) ([]domain.Message, error) {
	var claimed []domain.Message
	for {
		var (
			chunk []domain.Message
			more  bool
		)
		err := update(m.db, func(txn *badger.Txn) error {
			var err error
			chunk, more, err = m.claimChunk(txn, participantID)
			return err
		})
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, chunk...)
		if !more {
			break
		}
	}
	m.log.Debug("Unread messages claimed", "participant_id", participantID, "count", len(claimed))
	return claimed, nil
}

// claimChunk claims unread messages until the transaction reaches the batch
// limits of the database. more reports that entries were left for a next chunk.
func (m *MessageRepository) claimChunk(txn *badger.Txn, participantID string) ([]domain.Message, bool, error) {
	prefix := []byte(unreadPrefix(participantID))
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	options.Prefix = prefix
	it := txn.NewIterator(options)
	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
	}
	it.Close()

	budget := newTxnBudget(m.db)
	var claimed []domain.Message
	for _, id := range ids {
		message, err := getValue(txn, messageKey(id), unmarshalMessage)
		if errors.Is(err, badger.ErrKeyNotFound) {
			m.log.Warn("Dangling unread index entry", "participant_id", participantID, "message_id", id)
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if message.Read || message.RecipientID != participantID {
			continue
		}

		read := message
		read.Read = true
		key, value := []byte(messageKey(id)), marshalMessage(read)
		marker := []byte(unreadKey(participantID, id))
		if !budget.fits(entrySize(key, value), entrySize(marker, nil)) && len(claimed) > 0 {
			return claimed, true, nil
		}
		if err = txn.Set(key, value); err != nil {
			if errors.Is(err, badger.ErrTxnTooBig) && len(claimed) > 0 {
				return claimed, true, nil
			}
			return nil, false, err
		}
		if err = txn.Delete(marker); err != nil {
			return nil, false, err
		}
		claimed = append(claimed, read)
	}
	return claimed, false, nil
}

// txnBudget tracks the writes of one transaction against the batch limits
// badger enforces on commit.
type txnBudget struct {
	maxCount, maxSize int64
	count, size       int64
}

func newTxnBudget(db *badger.DB) *txnBudget {
	return &txnBudget{maxCount: db.MaxBatchCount(), maxSize: db.MaxBatchSize()}
}

// fits reserves room for the given entries, all or nothing.
func (b *txnBudget) fits(sizes ...int64) bool {
	count, size := b.count+int64(len(sizes)), b.size
	for _, s := range sizes {
		size += s
	}
	if count >= b.maxCount || size >= b.maxSize {
		return false
	}
	b.count, b.size = count, size
	return true
}

// entrySize overestimates what badger charges for one write: key, inline
// value, metadata and per-entry overhead.
func entrySize(key, value []byte) int64 {
	return int64(len(key) + len(value) + 32)
}

func (m *MessageRepository) unreadFor(txn *badger.Txn, participantID string) ([]domain.Message, error) {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	options.Prefix = []byte(unreadPrefix(participantID))
	it := txn.NewIterator(options)
	var ids []string
	for it.Seek(options.Prefix); it.ValidForPrefix(options.Prefix); it.Next() {
		ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), string(options.Prefix)))
	}
	it.Close()

	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		message, err := getValue(txn, messageKey(id), unmarshalMessage)
		if errors.Is(err, badger.ErrKeyNotFound) {
			m.log.Warn("Dangling unread index entry", "participant_id", participantID, "message_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return lo.Filter(messages, func(message domain.Message, _ int) bool {
		return !message.Read && message.RecipientID == participantID
	}), nil
}

// syncUnreadIndex moves the unread marker from the previous state of a
// message to its next state. Either side may be nil (insert or delete).
func (m *MessageRepository) syncUnreadIndex(txn *badger.Txn, prev, next *domain.Message) error {
	if prev != nil && !prev.Read {
		if next == nil || next.Read || next.RecipientID != prev.RecipientID {
			if err := txn.Delete([]byte(unreadKey(prev.RecipientID, prev.ID))); err != nil {
				return err
			}
		}
	}
	if next != nil && !next.Read {
		if prev == nil || prev.Read || prev.RecipientID != next.RecipientID {
			if err := txn.Set([]byte(unreadKey(next.RecipientID, next.ID)), nil); err != nil {
				return err
			}
		}
	}
	return nil
}
