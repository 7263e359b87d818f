package services

import (
	"context"
	"log/slog"
	"mini-chat/domain"
	"mini-chat/domain/event"
	"mini-chat/infrastructure/search"
	"mini-chat/moderation"
	"mini-chat/runtime"

	"github.com/abadojack/whatlanggo"
	"github.com/samber/lo"
)

// IChatService is everything the presentation layer may ask for.
type IChatService interface {
	Me() domain.Identity
	Rename(nickname string) (domain.Identity, error)
	Status() StatusView
	Sessions() []domain.Session
	StartPrivate(peerID string) (domain.Session, error)
	CreateGroup(name string) (domain.Session, error)
	JoinGroup(topic, name string) (domain.Session, error)
	DeleteSession(id string) error
	Messages(sessionID string) ([]MessageView, error)
	Send(sessionID, content string) (MessageView, error)
	Revoke(sessionID, messageID string) (MessageView, error)
	DeleteMessage(sessionID, messageID string) error
	Search(ctx context.Context, sessionID, query string) ([]MessageView, error)
	ToEventView(e event.DomainEvent) EventView
}

type MessageView struct {
	ID         string      `json:"id"`
	Sender     string      `json:"sender"`
	SenderName string      `json:"senderName,omitempty"`
	Timestamp  int64       `json:"timestamp"`
	Type       domain.Kind `json:"type"`
	Content    *string     `json:"content"`
	TargetID   *string     `json:"targetId,omitempty"`
	Revoked    bool        `json:"revoked"`
	Mine       bool        `json:"mine"`
	Lang       string      `json:"lang,omitempty"`
	Flagged    []string    `json:"flagged,omitempty"`
}

type StatusView struct {
	Status domain.Status `json:"status"`
	Peers  int           `json:"peers"`
}

type EventView struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type PeerCounter interface {
	PeerCount() int
}

type ChatService struct {
	log       *slog.Logger
	engine    *runtime.Engine
	index     *search.Index
	moderator *moderation.Moderator
	peers     PeerCounter
}

// NewChatService accepts a nil moderator (no masking) and a nil index (search disabled).
func NewChatService(log *slog.Logger, engine *runtime.Engine, index *search.Index,
	moderator *moderation.Moderator, peers PeerCounter) *ChatService {
	return &ChatService{log: log, engine: engine, index: index, moderator: moderator, peers: peers}
}

func (s *ChatService) Me() domain.Identity {
	return s.engine.Identity()
}

func (s *ChatService) Rename(nickname string) (domain.Identity, error) {
	return s.engine.SetNickname(nickname)
}

func (s *ChatService) Status() StatusView {
	view := StatusView{Status: s.engine.Status()}
	if s.peers != nil {
		view.Peers = s.peers.PeerCount()
	}
	return view
}

func (s *ChatService) Sessions() []domain.Session {
	return s.engine.Sessions()
}

func (s *ChatService) StartPrivate(peerID string) (domain.Session, error) {
	return s.engine.StartPrivate(peerID)
}

func (s *ChatService) CreateGroup(name string) (domain.Session, error) {
	return s.engine.CreateGroup(name)
}

func (s *ChatService) JoinGroup(topic, name string) (domain.Session, error) {
	return s.engine.JoinGroup(topic, name)
}

func (s *ChatService) DeleteSession(id string) error {
	return s.engine.DeleteSession(id)
}

func (s *ChatService) Messages(sessionID string) ([]MessageView, error) {
	messages, err := s.engine.Messages(sessionID)
	if err != nil {
		return nil, err
	}
	return lo.Map(messages, func(m domain.Message, _ int) MessageView { return s.ToMessageView(m) }), nil
}

func (s *ChatService) Send(sessionID, content string) (MessageView, error) {
	msg, err := s.engine.Send(sessionID, content, domain.KindText, "")
	if err != nil {
		return MessageView{}, err
	}
	return s.ToMessageView(msg), nil
}

func (s *ChatService) Revoke(sessionID, messageID string) (MessageView, error) {
	msg, err := s.engine.Send(sessionID, "", domain.KindRevoke, messageID)
	if err != nil {
		return MessageView{}, err
	}
	return s.ToMessageView(msg), nil
}

func (s *ChatService) DeleteMessage(sessionID, messageID string) error {
	return s.engine.DeleteLocal(sessionID, messageID)
}

// Search returns matching messages of the session, best match first.
func (s *ChatService) Search(ctx context.Context, sessionID, query string) ([]MessageView, error) {
	session, err := s.engine.Session(sessionID)
	if err != nil {
		return nil, err
	}
	if s.index == nil {
		return []MessageView{}, nil
	}
	hits, err := s.index.Search(ctx, session.Topic, query, search.DefaultLimit)
	if err != nil {
		return nil, err
	}
	messages, err := s.engine.Messages(sessionID)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(messages, func(m domain.Message) string { return m.ID })

	views := make([]MessageView, 0, len(hits))
	for _, hit := range hits {
		// The index can briefly lag behind a revoke.
		if msg, ok := byID[hit.MessageID]; ok && !msg.Revoked {
			views = append(views, s.ToMessageView(msg))
		}
	}
	return views, nil
}

// ToMessageView masks censored words and tags the language of text content.
func (s *ChatService) ToMessageView(m domain.Message) MessageView {
	view := MessageView{
		ID:         m.ID,
		Sender:     m.Sender,
		SenderName: m.SenderName,
		Timestamp:  m.Timestamp,
		Type:       m.Kind,
		Content:    m.Content,
		TargetID:   m.TargetID,
		Revoked:    m.Revoked,
		Mine:       m.Sender == s.engine.Identity().UserID,
	}
	if m.Content == nil || m.IsRevoke() {
		return view
	}

	if info := whatlanggo.Detect(*m.Content); info.IsReliable() {
		view.Lang = info.Lang.Iso6391()
	}
	censored, flagged := s.moderator.Censor(*m.Content)
	view.Content = &censored
	view.Flagged = flagged
	return view
}

func (s *ChatService) ToEventView(e event.DomainEvent) EventView {
	view := EventView{Type: e.Name()}
	switch evt := e.(type) {
	case event.MessageAppended:
		view.Data = map[string]any{"topic": evt.Topic, "source": evt.Source, "message": s.ToMessageView(evt.Message)}
	case event.MessageRevoked:
		view.Data = map[string]any{"topic": evt.Topic, "targetId": evt.TargetID}
	case event.MessageDeleted:
		view.Data = map[string]any{"topic": evt.Topic, "messageId": evt.MessageID}
	case event.SessionCreated:
		view.Data = map[string]any{"session": evt.Session, "discovered": evt.Discovered}
	case event.SessionRemoved:
		view.Data = map[string]any{"session": evt.Session}
	case event.StatusChanged:
		status := s.Status()
		status.Status = evt.Status
		view.Data = status
	case event.IdentityChanged:
		view.Data = evt.Identity
	}
	return view
}
