package internal

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"postbox/repositories"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

const defaultPrefix = repositories.MessagePrefix

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Detail    string
	Size      int
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() any

type PageData struct {
	Prefix   string
	Prefixes []string
	Items    []InspectRow
	Stats    any
}

// NewInspectHandler serves a read-only view of the badger keyspace on
// /inspect and the live stats as JSON on /stats.
func NewInspectHandler(db *badger.DB, mapper RowMapper, statsProvider StatsProvider) http.Handler {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = DescribeEntry
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultPrefix
		}

		data := PageData{
			Prefix: prefix,
			Prefixes: []string{
				repositories.ParticipantPrefix,
				repositories.MessagePrefix,
				repositories.UsernameIndexPrefix,
				repositories.UnreadIndexPrefix,
			},
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		items, err := ScanRows(db, prefix, mapper)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Items = items

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		var stats any = struct{}{}
		if statsProvider != nil {
			stats = statsProvider()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	})

	return mux
}

// ScanRows maps every entry under prefix, in key order.
func ScanRows(db *badger.DB, prefix string, mapper RowMapper) ([]InspectRow, error) {
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(string(item.KeyCopy(nil)), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// StartDebugServer listens on localhost until ctx is cancelled.
func StartDebugServer(ctx context.Context, port int, handler http.Handler, log *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Debug server listening", "url", fmt.Sprintf("http://%s/inspect", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Debug server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	return server
}

// DescribeEntry decodes a postbox key/value pair into a readable row.
// Password hashes never leave this function.
func DescribeEntry(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
		Size:      len(val),
	}

	switch {
	case strings.HasPrefix(key, repositories.ParticipantPrefix):
		row.Type = "PARTICIPANT"
		row.EntityID = shortID(strings.TrimPrefix(key, repositories.ParticipantPrefix))
		p, err := repositories.DecodeParticipant(val)
		if err != nil {
			row.Detail = "undecodable: " + err.Error()
			return row
		}
		row.Timestamp = p.CreatedAt.Format(time.TimeOnly)
		lastLogin := "never"
		if p.LastLogin != nil {
			lastLogin = p.LastLogin.Format(time.DateTime)
		}
		row.Detail = fmt.Sprintf("username=%s last_login=%s hash=[redacted]", p.Username, lastLogin)

	case strings.HasPrefix(key, repositories.MessagePrefix):
		row.Type = "MESSAGE"
		row.EntityID = shortID(strings.TrimPrefix(key, repositories.MessagePrefix))
		m, err := repositories.DecodeMessage(val)
		if err != nil {
			row.Detail = "undecodable: " + err.Error()
			return row
		}
		row.Timestamp = m.CreatedAt.Format(time.TimeOnly)
		row.Detail = fmt.Sprintf("%s -> %s read=%t title=%q",
			shortID(m.SenderID), shortID(m.RecipientID), m.Read, m.Title)

	case strings.HasPrefix(key, repositories.UsernameIndexPrefix):
		row.Type = "IDX_USERNAME"
		row.EntityID = shortID(string(val))
		row.Detail = "username=" + strings.TrimPrefix(key, repositories.UsernameIndexPrefix)

	case strings.HasPrefix(key, repositories.UnreadIndexPrefix):
		row.Type = "IDX_UNREAD"
		parts := strings.SplitN(strings.TrimPrefix(key, repositories.UnreadIndexPrefix), ":", 2)
		if len(parts) == 2 {
			row.EntityID = shortID(parts[1])
			row.Detail = "recipient=" + shortID(parts[0])
		}
	}
	return row
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
