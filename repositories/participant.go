//go:generate go run go.uber.org/mock/mockgen -source=participant.go -destination=../mocks/mock_participant_repository.go -package=mocks
package repositories

import (
	"errors"
	"fmt"
	"iter"

	"postbox/domain"
	perrors "postbox/errors"

	"github.com/dgraph-io/badger/v4"
)

type IParticipantRepository interface {
	Insert(participant domain.Participant) error
	Get(id string) (domain.Participant, error)
	Exists(id string) (bool, error)
	FindByUsername(username string) (domain.Participant, error)
	Update(id string, mutate func(*domain.Participant) error) (domain.Participant, error)
	ListAll() ([]domain.Participant, error)
}

type ParticipantRepository struct {
	db *badger.DB
}

func NewParticipantRepository(db *badger.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func participantKey(id string) string { return participantPrefix + id }

func usernameKey(username string) string { return usernameIndexPrefix + username }

// Insert persists a new participant.
// The username index is checked and written in the same transaction, which
// makes username uniqueness hold even for concurrent registrations.
func (r *ParticipantRepository) Insert(participant domain.Participant) error {
	return update(r.db, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(usernameKey(participant.Username))); err == nil {
			return perrors.ErrDuplicateUsername
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := txn.Get([]byte(participantKey(participant.ID))); err == nil {
			return fmt.Errorf("participant %s already exists", participant.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set([]byte(participantKey(participant.ID)), marshalParticipant(participant)); err != nil {
			return err
		}
		return txn.Set([]byte(usernameKey(participant.Username)), []byte(participant.ID))
	})
}

func (r *ParticipantRepository) Get(id string) (domain.Participant, error) {
	var participant domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		participant, err = getValue(txn, participantKey(id), unmarshalParticipant)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Participant{}, perrors.ErrNotFound
	}
	return participant, err
}

func (r *ParticipantRepository) Exists(id string) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(participantKey(id)))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// FindByUsername resolves the username index, then loads the record.
// Matching is exact and case-sensitive.
func (r *ParticipantRepository) FindByUsername(username string) (domain.Participant, error) {
	var participant domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(usernameKey(username)))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		participant, err = getValue(txn, participantKey(string(id)), unmarshalParticipant)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Participant{}, perrors.ErrNotFound
	}
	return participant, err
}

// Update loads the participant, applies mutate and stores the result atomically.
// A mutator error aborts the transaction and is returned unchanged.
func (r *ParticipantRepository) Update(id string, mutate func(*domain.Participant) error) (domain.Participant, error) {
	var participant domain.Participant
	err := update(r.db, func(txn *badger.Txn) error {
		current, err := getValue(txn, participantKey(id), unmarshalParticipant)
		if err != nil {
			return err
		}
		next := current
		if err = mutate(&next); err != nil {
			return err
		}
		if next.ID != current.ID || next.Username != current.Username {
			return fmt.Errorf("%w: participant id and username", perrors.ErrImmutableField)
		}
		participant = next
		return txn.Set([]byte(participantKey(id)), marshalParticipant(next))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Participant{}, perrors.ErrNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return participant, nil
}

// All enumerates participants lazily in storage order.
func (r *ParticipantRepository) All() iter.Seq2[domain.Participant, error] {
	return scan(r.db, participantPrefix, unmarshalParticipant)
}

func (r *ParticipantRepository) ListAll() ([]domain.Participant, error) {
	return collect(r.All(), nil)
}
