// Package runtime wires the owned stores, the transport and the echo bus together.
// The Engine is the single ingestion entry point: every message, whatever its source,
// goes through Ingest before touching the registry or the message store.
package runtime

import (
	errs "errors"
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"mini-chat/domain/event"
	"mini-chat/errors"
	"mini-chat/observability"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Engine struct {
	log        *slog.Logger
	clock      clockwork.Clock
	validate   *validator.Validate
	registry   contract.IRegistry
	store      contract.IMessageStore
	transport  contract.ITransport
	echo       contract.IEchoBus
	identities contract.IIdentityRepository
	metrics    *observability.Metrics

	events   chan event.DomainEvent
	outbound chan domain.Envelope

	// discoveryMu serializes session creation so two racing first
	// messages on a new topic end up with a single session and subscription.
	discoveryMu sync.Mutex

	mu       sync.RWMutex
	identity domain.Identity
	status   domain.Status
}

func NewEngine(
	log *slog.Logger,
	clock clockwork.Clock,
	identity domain.Identity,
	registry contract.IRegistry,
	store contract.IMessageStore,
	transport contract.ITransport,
	echo contract.IEchoBus,
	identities contract.IIdentityRepository,
	metrics *observability.Metrics,
	eventBufferSize, outboundQueueSize int,
) *Engine {
	return &Engine{
		log:        log,
		clock:      clock,
		validate:   validator.New(),
		registry:   registry,
		store:      store,
		transport:  transport,
		echo:       echo,
		identities: identities,
		metrics:    metrics,
		events:     make(chan event.DomainEvent, eventBufferSize),
		outbound:   make(chan domain.Envelope, outboundQueueSize),
		identity:   identity,
		status:     domain.StatusConnecting,
	}
}

// Events is drained by the fanout worker.
func (e *Engine) Events() <-chan event.DomainEvent { return e.events }

// Outbound is drained by the publisher worker.
func (e *Engine) Outbound() <-chan domain.Envelope { return e.outbound }

// Ingest validates, discovers and applies a message. It returns true when the
// observable state changed. Malformed input is dropped without error.
func (e *Engine) Ingest(topic string, msg domain.Message, source event.Source) bool {
	msg = msg.Normalize()
	if topic == "" {
		e.log.Debug("Dropping message without topic", "source", source, "id", msg.ID)
		e.count(source, observability.OutcomeMalformed)
		return false
	}
	if err := e.validate.Struct(msg); err != nil {
		e.log.Debug("Dropping malformed message", "topic", topic, "source", source, "error", err)
		e.count(source, observability.OutcomeMalformed)
		return false
	}

	e.discover(topic, msg)

	switch msg.Kind {
	case domain.KindRevoke:
		return e.applyRevoke(topic, msg, source)
	case domain.KindText:
		return e.append(topic, msg, source)
	default:
		// Unknown content kinds are stored like text.
		return e.append(topic, msg, source)
	}
}

// HandleEnvelope is the echo bus entry point.
func (e *Engine) HandleEnvelope(env domain.Envelope) {
	e.Ingest(env.Topic, env.Payload, event.SourceEcho)
}

func (e *Engine) append(topic string, msg domain.Message, source event.Source) bool {
	applied, err := e.store.Append(topic, msg)
	if err != nil {
		e.log.Error("Message kept in memory but not persisted", "topic", topic, "id", msg.ID, "error", err)
	}
	if !applied {
		e.count(source, observability.OutcomeDuplicate)
		return false
	}
	e.count(source, observability.OutcomeApplied)
	e.emit(event.MessageAppended{Topic: topic, Message: msg, Source: source})
	return true
}

func (e *Engine) applyRevoke(topic string, msg domain.Message, source event.Source) bool {
	applied, err := e.store.ApplyRevoke(topic, msg)
	switch {
	case errs.Is(err, errors.ErrRevokeTargetMissing):
		e.log.Debug("Revoke target not found, dropping", "topic", topic, "target", msg.Target())
		e.count(source, observability.OutcomeRevokeMissing)
		return false
	case err != nil:
		e.log.Error("Revoke kept in memory but not persisted", "topic", topic, "target", msg.Target(), "error", err)
	}
	if !applied {
		e.count(source, observability.OutcomeDuplicate)
		return false
	}
	e.count(source, observability.OutcomeApplied)
	e.emit(event.MessageRevoked{Topic: topic, TargetID: msg.Target(), Source: source})
	return true
}

// discover creates a private session for an unknown private topic.
// It runs before the store apply so the first message is attributable to a session.
func (e *Engine) discover(topic string, msg domain.Message) {
	if !domain.IsPrivateTopic(topic) {
		return
	}
	if _, ok := e.registry.FindByTopic(topic); ok {
		return
	}

	e.discoveryMu.Lock()
	defer e.discoveryMu.Unlock()
	if _, ok := e.registry.FindByTopic(topic); ok {
		return
	}

	counterpart, ok := domain.Counterpart(topic, e.Identity().UserID, msg.Sender)
	if !ok {
		return
	}
	name := counterpart
	if msg.Sender == counterpart && strings.TrimSpace(msg.SenderName) != "" {
		name = msg.SenderName
	}

	session, created, err := e.register(domain.NewPrivateSession(name, topic, counterpart, e.clock.Now()))
	if err != nil {
		e.log.Error("Unable to create discovered session", "topic", topic, "error", err)
		return
	}
	if !created {
		return
	}
	e.log.Info("Private session discovered", "topic", topic, "peer", counterpart)
	if e.metrics != nil {
		e.metrics.Discovered.Inc()
	}
	e.emit(event.SessionCreated{Session: session, Discovered: true})
}

// register creates the session and opens its subscription.
// Must be called with discoveryMu held. A duplicate topic hands back the existing session.
func (e *Engine) register(session domain.Session) (domain.Session, bool, error) {
	created, err := e.registry.Create(session)
	switch {
	case errs.Is(err, errors.ErrDuplicateTopic):
		return created, false, nil
	case err != nil && created.ID == "":
		return domain.Session{}, false, err
	case err != nil:
		e.log.Error("Session created but not persisted", "topic", session.Topic, "error", err)
	}
	e.subscribe(created.Topic)
	e.refreshSessionGauge()
	return created, true, nil
}

func (e *Engine) subscribe(topic string) {
	err := e.transport.Subscribe(topic, func(msg domain.Message) {
		e.Ingest(topic, msg, event.SourceTransport)
	})
	if err != nil {
		e.log.Warn("Transport subscription failed, topic stays local-only", "topic", topic, "error", err)
	}
}

// SubscribeAll opens a subscription for every known session.
func (e *Engine) SubscribeAll() {
	for _, session := range e.registry.List() {
		e.subscribe(session.Topic)
	}
	e.refreshSessionGauge()
}

// Send applies a new message locally, then hands it to the echo bus and the transport queue.
// Transport failures never reach the caller.
func (e *Engine) Send(sessionID, content string, kind domain.Kind, targetID string) (domain.Message, error) {
	session, ok := e.registry.FindByID(sessionID)
	if !ok {
		return domain.Message{}, errors.ErrSessionNotFound
	}
	identity := e.Identity()
	msg := domain.Message{
		ID:         uuid.NewString(),
		Sender:     identity.UserID,
		SenderName: identity.Nickname,
		Timestamp:  e.clock.Now().UnixMilli(),
		Kind:       kind,
	}

	switch kind {
	case domain.KindRevoke:
		targetID = strings.TrimSpace(targetID)
		if targetID == "" {
			return domain.Message{}, fmt.Errorf("%w: revoke without target", errors.ErrMalformedMessage)
		}
		if target, found := e.store.Find(session.Topic, targetID); found && target.Sender != identity.UserID {
			return domain.Message{}, errors.ErrNotMessageOwner
		}
		msg.TargetID = &targetID
	default:
		if strings.TrimSpace(content) == "" {
			return domain.Message{}, errors.ErrEmptyContent
		}
		if kind == "" {
			msg.Kind = domain.KindText
		}
		msg.Content = &content
	}

	e.Ingest(session.Topic, msg, event.SourceLocal)

	env := domain.Envelope{Topic: session.Topic, Payload: msg}
	if err := e.echo.Publish(env); err != nil {
		e.log.Warn("Echo bus publish failed", "topic", session.Topic, "error", err)
	}
	e.enqueue(env)
	return msg, nil
}

func (e *Engine) enqueue(env domain.Envelope) {
	select {
	case e.outbound <- env:
	default:
		e.log.Warn("Transport publish dropped", "topic", env.Topic, "id", env.Payload.ID, "error", errors.ErrQueueFull)
		if e.metrics != nil {
			e.metrics.Published.WithLabelValues(observability.ResultDropped).Inc()
		}
	}
}

// StartPrivate returns the private session with peerID, creating it when needed.
func (e *Engine) StartPrivate(peerID string) (domain.Session, error) {
	peerID = strings.TrimSpace(peerID)
	self := e.Identity().UserID
	if !domain.IsValidUserID(peerID) || peerID == self {
		return domain.Session{}, errors.ErrInvalidPeer
	}
	topic := domain.PrivateTopic(self, peerID)
	return e.open(domain.NewPrivateSession(peerID, topic, peerID, e.clock.Now()))
}

func (e *Engine) CreateGroup(name string) (domain.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Session{}, errors.ErrEmptySessionName
	}
	return e.open(domain.NewGroupSession(name, e.clock.Now()))
}

// JoinGroup binds a session to a topic shared out of band.
// A private topic is joined as a private session with the counterpart.
func (e *Engine) JoinGroup(topic, name string) (domain.Session, error) {
	topic = strings.TrimSpace(topic)
	if !domain.IsValidTopic(topic) {
		return domain.Session{}, errors.ErrInvalidTopic
	}
	name = strings.TrimSpace(name)
	if counterpart, ok := domain.Counterpart(topic, e.Identity().UserID, ""); ok {
		if name == "" {
			name = counterpart
		}
		return e.open(domain.NewPrivateSession(name, topic, counterpart, e.clock.Now()))
	}
	if name == "" {
		name = strings.TrimSuffix(strings.TrimPrefix(topic, "/mini-chat/1/"), "/proto")
	}
	return e.open(domain.NewJoinedSession(name, topic, e.clock.Now()))
}

func (e *Engine) open(session domain.Session) (domain.Session, error) {
	e.discoveryMu.Lock()
	defer e.discoveryMu.Unlock()
	if existing, ok := e.registry.FindByTopic(session.Topic); ok {
		return existing, nil
	}
	created, ok, err := e.register(session)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session %s: %w", session.Topic, err)
	}
	if ok {
		e.emit(event.SessionCreated{Session: created})
	}
	return created, nil
}

// DeleteSession removes the session and closes its subscription. History is kept.
func (e *Engine) DeleteSession(id string) error {
	e.discoveryMu.Lock()
	defer e.discoveryMu.Unlock()

	session, err := e.registry.Remove(id)
	if err != nil && session.ID == "" {
		return err
	}
	if err != nil {
		e.log.Error("Session removed but not persisted", "id", id, "error", err)
	}
	e.transport.Unsubscribe(session.Topic)
	e.refreshSessionGauge()
	e.emit(event.SessionRemoved{Session: session})
	return nil
}

// DeleteLocal hides a message from this client only.
func (e *Engine) DeleteLocal(sessionID, messageID string) error {
	session, ok := e.registry.FindByID(sessionID)
	if !ok {
		return errors.ErrSessionNotFound
	}
	deleted, err := e.store.DeleteLocal(session.Topic, messageID)
	if !deleted {
		return errors.ErrMessageNotFound
	}
	if err != nil {
		e.log.Error("Message deleted but not persisted", "topic", session.Topic, "id", messageID, "error", err)
	}
	e.emit(event.MessageDeleted{Topic: session.Topic, MessageID: messageID})
	return nil
}

func (e *Engine) SetNickname(nickname string) (domain.Identity, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return domain.Identity{}, errors.ErrEmptyNickname
	}

	e.mu.Lock()
	identity := e.identity
	identity.Nickname = nickname
	if err := e.identities.Save(identity); err != nil {
		e.mu.Unlock()
		return domain.Identity{}, fmt.Errorf("save identity: %w", err)
	}
	e.identity = identity
	e.mu.Unlock()

	e.emit(event.IdentityChanged{Identity: identity})
	return identity, nil
}

func (e *Engine) Sessions() []domain.Session {
	return e.registry.List()
}

func (e *Engine) Session(id string) (domain.Session, error) {
	session, ok := e.registry.FindByID(id)
	if !ok {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	return session, nil
}

func (e *Engine) Messages(sessionID string) ([]domain.Message, error) {
	session, ok := e.registry.FindByID(sessionID)
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return e.store.Get(session.Topic), nil
}

func (e *Engine) Identity() domain.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identity
}

func (e *Engine) Status() domain.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// SetStatus only notifies observers on an actual transition.
func (e *Engine) SetStatus(status domain.Status) {
	e.mu.Lock()
	if e.status == status {
		e.mu.Unlock()
		return
	}
	previous := e.status
	e.status = status
	e.mu.Unlock()

	e.log.Info("Connectivity changed", "from", previous, "to", status)
	e.emit(event.StatusChanged{Status: status})
}

func (e *Engine) emit(evt event.DomainEvent) {
	select {
	case e.events <- evt:
	default:
		e.log.Debug("Event buffer full, dropping", "event", evt.Name())
		if e.metrics != nil {
			e.metrics.EventsDropped.Inc()
		}
	}
}

func (e *Engine) count(source event.Source, outcome string) {
	if e.metrics != nil {
		e.metrics.Ingested.WithLabelValues(string(source), outcome).Inc()
	}
}

func (e *Engine) refreshSessionGauge() {
	if e.metrics != nil {
		e.metrics.Sessions.Set(float64(len(e.registry.List())))
	}
}
