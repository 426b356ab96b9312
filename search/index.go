//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../mocks/mock_message_index.go -package=mocks
package search

import (
	"context"
	"fmt"
	"log/slog"

	"postbox/domain"

	"github.com/blugelabs/bluge"
	"github.com/samber/lo"
)

const (
	fieldTitle     = "title"
	fieldBody      = "body"
	fieldSender    = "sender"
	fieldRecipient = "recipient"
	fieldID        = "_id"
)

// MessageIndex is a ranked full-text view over stored messages.
// It only holds ids: the message store stays the source of truth.
type MessageIndex interface {
	Index(message domain.Message) error
	Remove(id string) error
	Query(ctx context.Context, query Query) ([]string, error)
	Rebuild(ctx context.Context, messages []domain.Message) error
	Close() error
}

type BlugeIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// NewBlugeIndex opens an index stored under path, or a memory-only index when
// path is empty.
func NewBlugeIndex(path string, log *slog.Logger) (*BlugeIndex, error) {
	config := bluge.InMemoryOnlyConfig()
	if path != "" {
		config = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &BlugeIndex{writer: writer, log: log}, nil
}

func toDocument(message domain.Message) *bluge.Document {
	return bluge.NewDocument(message.ID).
		AddField(bluge.NewTextField(fieldTitle, message.Title)).
		AddField(bluge.NewTextField(fieldBody, message.Body)).
		AddField(bluge.NewKeywordField(fieldSender, message.SenderID)).
		AddField(bluge.NewKeywordField(fieldRecipient, message.RecipientID))
}

// Index adds the message or replaces its previous version.
func (b *BlugeIndex) Index(message domain.Message) error {
	if err := b.writer.Update(bluge.Identifier(message.ID), toDocument(message)); err != nil {
		return fmt.Errorf("index message %s: %w", message.ID, err)
	}
	return nil
}

func (b *BlugeIndex) Remove(id string) error {
	if err := b.writer.Delete(bluge.Identifier(id)); err != nil {
		return fmt.Errorf("remove message %s: %w", id, err)
	}
	return nil
}

// Query returns matching message ids, best score first.
func (b *BlugeIndex) Query(ctx context.Context, query Query) ([]string, error) {
	if query.Empty() && query.SenderID == "" {
		return nil, nil
	}
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return b.search(ctx, bluge.NewTopNSearch(limit, buildQuery(query)))
}

func buildQuery(query Query) bluge.Query {
	boolean := bluge.NewBooleanQuery()
	if query.Terms != "" {
		terms := bluge.NewBooleanQuery().
			AddShould(bluge.NewMatchQuery(query.Terms).SetField(fieldTitle).SetBoost(2)).
			AddShould(bluge.NewMatchQuery(query.Terms).SetField(fieldBody)).
			SetMinShould(1)
		boolean.AddMust(terms)
	} else {
		boolean.AddMust(bluge.NewMatchAllQuery())
	}
	if query.SenderID != "" {
		boolean.AddMust(bluge.NewTermQuery(query.SenderID).SetField(fieldSender))
	}
	return boolean
}

// Rebuild makes the index mirror messages exactly: stale documents are
// deleted and every message is written again, in a single batch.
func (b *BlugeIndex) Rebuild(ctx context.Context, messages []domain.Message) error {
	existing, err := b.allIDs(ctx)
	if err != nil {
		return err
	}
	keep := lo.SliceToMap(messages, func(m domain.Message) (string, struct{}) {
		return m.ID, struct{}{}
	})

	batch := bluge.NewBatch()
	stale := 0
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			batch.Delete(bluge.Identifier(id))
			stale++
		}
	}
	for _, message := range messages {
		batch.Update(bluge.Identifier(message.ID), toDocument(message))
	}
	if err = b.writer.Batch(batch); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	b.log.Debug("Search index rebuilt", "documents", len(messages), "stale", stale)
	return nil
}

func (b *BlugeIndex) allIDs(ctx context.Context) ([]string, error) {
	reader, err := b.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	count, err := reader.Count()
	_ = reader.Close()
	if err != nil {
		return nil, fmt.Errorf("count index documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return b.search(ctx, bluge.NewTopNSearch(int(count), bluge.NewMatchAllQuery()))
}

func (b *BlugeIndex) search(ctx context.Context, request bluge.SearchRequest) ([]string, error) {
	reader, err := b.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	var ids []string
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == fieldID {
				ids = append(ids, string(value))
				return false
			}
			return true
		})
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("read search results: %w", err)
	}
	return ids, nil
}

func (b *BlugeIndex) Close() error {
	return b.writer.Close()
}
