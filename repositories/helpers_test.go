package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"postbox/domain"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// openSmallDB opens a database whose transactions hold only a few thousand
// writes.
func openSmallDB(t *testing.T) *badger.DB {
	t.Helper()
	options := badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithMemTableSize(1 << 20).
		WithValueThreshold(1 << 10)
	db, err := badger.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessageRepository(t *testing.T) (*MessageRepository, *badger.DB) {
	db := openDB(t)
	return NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug)), db
}

func newID(t *testing.T) string {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return id.String()
}

func newMessage(t *testing.T, sender, recipient, body string) domain.Message {
	return domain.Message{
		ID:          newID(t),
		Title:       "title",
		Body:        body,
		SenderID:    sender,
		RecipientID: recipient,
		CreatedAt:   time.Now().UTC(),
	}
}
