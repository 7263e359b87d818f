package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key     string
	Type    string
	Entries string
	Detail  string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a read-only view of the badger keys on localhost.
// The caller owns the returned server and shuts it down.
func StartDebugServer(log *slog.Logger, db *badger.DB, port int, endpoint string, mapper RowMapper, statsProvider StatsProvider) *http.Server {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = DefaultMapper
	}

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		data := PageData{
			Prefix: r.URL.Query().Get("prefix"),
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(data.Prefix)); it.ValidForPrefix([]byte(data.Prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("Debug server stopped", "error", err)
		}
	}()
	return server
}

func DefaultMapper(key string, val []byte) InspectRow {
	return InspectRow{
		Key:     key,
		Type:    "RAW",
		Entries: "-",
		Detail:  "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
}

// ChatMapper describes the identity, session and message keys.
func ChatMapper(key string, val []byte) InspectRow {
	row := DefaultMapper(key, val)
	switch {
	case key == "identity":
		row.Type = "IDENTITY"
		row.Detail = string(val)
	case key == "sessions":
		row.Type = "SESSIONS"
		var sessions []json.RawMessage
		if err := json.Unmarshal(val, &sessions); err == nil {
			row.Entries = strconv.Itoa(len(sessions))
		}
	case strings.HasPrefix(key, "messages:"):
		row.Type = "MESSAGES"
		var messages []struct {
			Sender  string  `json:"sender"`
			Content *string `json:"content"`
		}
		if err := json.Unmarshal(val, &messages); err == nil {
			row.Entries = strconv.Itoa(len(messages))
			if n := len(messages); n > 0 && messages[n-1].Content != nil {
				row.Detail = messages[n-1].Sender + ": " + *messages[n-1].Content
			}
		}
	}
	return row
}
