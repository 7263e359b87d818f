// Package search keeps a full-text index of the local history.
// It follows the engine through its events and never touches the message store.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"mini-chat/domain/event"
	"strings"

	"github.com/blugelabs/bluge"
)

const (
	fieldTopic     = "topic"
	fieldMessageID = "message_id"
	fieldSender    = "sender"
	fieldContent   = "content"

	DefaultLimit = 50
)

var _ contract.EventSink = (*Index)(nil)

type Hit struct {
	Topic     string
	MessageID string
	Score     float64
}

type Index struct {
	log    *slog.Logger
	writer *bluge.Writer
}

// NewIndex opens a writer on path, or an in-memory index when path is empty.
func NewIndex(log *slog.Logger, path string) (*Index, error) {
	cfg := bluge.InMemoryOnlyConfig()
	if path != "" {
		cfg = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &Index{log: log, writer: writer}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

func (i *Index) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageAppended:
		if !indexable(evt.Message) {
			return nil
		}
		doc := document(evt.Topic, evt.Message)
		return i.writer.Update(doc.ID(), doc)
	case event.MessageRevoked:
		return i.writer.Delete(bluge.Identifier(documentID(evt.Topic, evt.TargetID)))
	case event.MessageDeleted:
		return i.writer.Delete(bluge.Identifier(documentID(evt.Topic, evt.MessageID)))
	default:
		return nil
	}
}

// IndexTopic indexes a restored history in one batch.
func (i *Index) IndexTopic(topic string, messages []domain.Message) error {
	batch := bluge.NewBatch()
	count := 0
	for _, msg := range messages {
		if !indexable(msg) {
			continue
		}
		doc := document(topic, msg)
		batch.Update(doc.ID(), doc)
		count++
	}
	if count == 0 {
		return nil
	}
	if err := i.writer.Batch(batch); err != nil {
		return fmt.Errorf("failed to index topic %s: %w", topic, err)
	}
	i.log.Debug("Topic indexed", "topic", topic, "messages", count)
	return nil
}

// History is the restored message history the index is rebuilt from.
type History interface {
	Topics() []string
	Get(topic string) []domain.Message
}

// Rebuild indexes every restored topic.
func (i *Index) Rebuild(history History) error {
	for _, topic := range history.Topics() {
		if err := i.IndexTopic(topic, history.Get(topic)); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the best matches of query inside a single topic.
func (i *Index) Search(ctx context.Context, topic, query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(topic).SetField(fieldTopic)).
		AddMust(bluge.NewMatchQuery(query).SetField(fieldContent))

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var hits []Hit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldTopic:
				hit.Topic = string(value)
			case fieldMessageID:
				hit.MessageID = string(value)
			}
			return true
		})
		if err != nil {
			break
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return hits, nil
}

func indexable(msg domain.Message) bool {
	return !msg.IsRevoke() && !msg.Revoked && strings.TrimSpace(msg.Text()) != ""
}

func documentID(topic, messageID string) string {
	return topic + "|" + messageID
}

func document(topic string, msg domain.Message) *bluge.Document {
	return bluge.NewDocument(documentID(topic, msg.ID)).
		AddField(bluge.NewKeywordField(fieldTopic, topic).StoreValue()).
		AddField(bluge.NewKeywordField(fieldMessageID, msg.ID).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, msg.Sender).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, msg.Text()))
}
