package runtime

import (
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"mini-chat/domain/event"
	"mini-chat/errors"
	"mini-chat/infrastructure/storage"
	"mini-chat/mocks"
	"mini-chat/observability"
	"mini-chat/projection"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type engineFixture struct {
	engine     *Engine
	registry   *Registry
	store      *projection.MessageStore
	identities *storage.IdentityRepository
	transport  *mocks.MockITransport
	echo       *mocks.MockIEchoBus
	clock      clockwork.FakeClock
	metrics    *observability.Metrics
}

func newEngineFixture(t *testing.T, self domain.Identity, queueSize int) *engineFixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	kv := setupTestKV(t)
	registry := NewRegistry(log, storage.NewSessionRepository(kv))
	require.NoError(t, registry.Load())
	store := newTestStore(t, log, kv)
	identities := storage.NewIdentityRepository(kv)
	require.NoError(t, identities.Save(self))
	transport := mocks.NewMockITransport(ctrl)
	echo := mocks.NewMockIEchoBus(ctrl)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	engine := NewEngine(log, clock, self, registry, store, transport, echo, identities, metrics, 64, queueSize)
	return &engineFixture{
		engine:     engine,
		registry:   registry,
		store:      store,
		identities: identities,
		transport:  transport,
		echo:       echo,
		clock:      clock,
		metrics:    metrics,
	}
}

func newTestStore(t *testing.T, log *slog.Logger, kv contract.KeyValue) *projection.MessageStore {
	store := projection.NewMessageStore(log, storage.NewMessageRepository(kv, log))
	require.NoError(t, store.Load())
	return store
}

func textMessage(id, sender, senderName, content string) domain.Message {
	return domain.Message{ID: id, Sender: sender, SenderName: senderName, Kind: domain.KindText, Content: &content}
}

func drainEvents(engine *Engine) []event.DomainEvent {
	var res []event.DomainEvent
	for {
		select {
		case evt := <-engine.Events():
			res = append(res, evt)
		default:
			return res
		}
	}
}

func TestEngine_Send_Text_Then_Revoke_On_Lobby(t *testing.T) {
	req := require.New(t)
	self := domain.Identity{UserID: "u1", Nickname: "alice"}
	f := newEngineFixture(t, self, 8)
	f.echo.EXPECT().Publish(gomock.Any()).Return(nil).Times(2)

	// When client A sends a text on the lobby
	sent, err := f.engine.Send(domain.LobbyID, "hi", domain.KindText, "")
	req.NoError(err)

	// Then the lobby holds one entry which is not revoked
	messages, err := f.engine.Messages(domain.LobbyID)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(sent.ID, messages[0].ID)
	req.Equal("hi", messages[0].Text())
	req.False(messages[0].Revoked)
	req.Equal("u1", messages[0].Sender)
	req.Equal("alice", messages[0].SenderName)
	req.Equal(f.clock.Now().UnixMilli(), messages[0].Timestamp)

	// When client A revokes it
	revoke, err := f.engine.Send(domain.LobbyID, "", domain.KindRevoke, sent.ID)
	req.NoError(err)
	req.Equal(sent.ID, revoke.Target())

	// Then the entry is tombstoned and the revoke itself is never stored
	messages, err = f.engine.Messages(domain.LobbyID)
	req.NoError(err)
	req.Len(messages, 1)
	req.True(messages[0].Revoked)
	req.Nil(messages[0].Content)

	// And both sends were queued for the transport
	req.Len(f.engine.Outbound(), 2)
	first := <-f.engine.Outbound()
	req.Equal(domain.LobbyTopic, first.Topic)
	req.Equal(sent.ID, first.Payload.ID)
}

func TestEngine_Echo_And_Local_Apply_Store_One_Copy(t *testing.T) {
	req := require.New(t)
	self := domain.Identity{UserID: "u1", Nickname: "alice"}
	f := newEngineFixture(t, self, 8)
	msg := textMessage("m1", "u1", "alice", "hi")

	// When the same send is applied locally and then echoed by another tab
	applied := f.engine.Ingest(domain.LobbyTopic, msg, event.SourceLocal)
	echoed := f.engine.Ingest(domain.LobbyTopic, msg, event.SourceEcho)
	f.engine.HandleEnvelope(domain.Envelope{Topic: domain.LobbyTopic, Payload: msg})

	// Then the store holds exactly one copy
	req.True(applied)
	req.False(echoed)
	req.Len(f.store.Get(domain.LobbyTopic), 1)
	req.Equal(float64(2), testutil.ToFloat64(f.metrics.Ingested.WithLabelValues(string(event.SourceEcho), observability.OutcomeDuplicate)))

	// And observers were notified only once
	events := drainEvents(f.engine)
	req.Len(events, 1)
	req.IsType(event.MessageAppended{}, events[0])
}

func TestEngine_Inbound_Revoke_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	target := "m1"
	revoke := domain.Message{ID: "m2", Sender: "u2", Kind: domain.KindRevoke, TargetID: &target}

	req.True(f.engine.Ingest(domain.LobbyTopic, textMessage("m1", "u2", "bob", "hello"), event.SourceTransport))

	// When the revoke is delivered twice
	req.True(f.engine.Ingest(domain.LobbyTopic, revoke, event.SourceTransport))
	req.False(f.engine.Ingest(domain.LobbyTopic, revoke, event.SourceEcho))

	// Then the target is revoked once
	messages := f.store.Get(domain.LobbyTopic)
	req.Len(messages, 1)
	req.True(messages[0].Revoked)

	// And a replay of the original text doesn't resurrect it
	req.False(f.engine.Ingest(domain.LobbyTopic, textMessage("m1", "u2", "bob", "hello"), event.SourceTransport))
	req.True(f.store.Get(domain.LobbyTopic)[0].Revoked)
}

func TestEngine_Revoke_Without_Target_In_Store_Is_NoOp(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	req.True(f.engine.Ingest(domain.LobbyTopic, textMessage("m1", "u2", "bob", "hello"), event.SourceTransport))
	before := f.store.Get(domain.LobbyTopic)
	target := "unknown"

	// When a revoke targets a message that never arrived
	applied := f.engine.Ingest(domain.LobbyTopic,
		domain.Message{ID: "m9", Sender: "u2", Kind: domain.KindRevoke, TargetID: &target}, event.SourceTransport)

	// Then nothing changes
	req.False(applied)
	req.Equal(before, f.store.Get(domain.LobbyTopic))
	req.Equal(float64(1), testutil.ToFloat64(f.metrics.Ingested.WithLabelValues(string(event.SourceTransport), observability.OutcomeRevokeMissing)))
}

func TestEngine_Malformed_Messages_Are_Dropped(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)

	// Given a message without id, one with an oversized id and one without topic
	req.False(f.engine.Ingest(domain.LobbyTopic, textMessage("", "u2", "bob", "x"), event.SourceTransport))
	req.False(f.engine.Ingest(domain.LobbyTopic, textMessage(strings.Repeat("m", 1025), "u2", "bob", "x"), event.SourceTransport))
	req.False(f.engine.Ingest("", textMessage("m3", "u2", "bob", "x"), event.SourceEcho))

	// Then nothing is stored and nothing is notified
	req.Empty(f.store.Get(domain.LobbyTopic))
	req.Empty(drainEvents(f.engine))
	req.Equal(float64(2), testutil.ToFloat64(f.metrics.Ingested.WithLabelValues(string(event.SourceTransport), observability.OutcomeMalformed)))
}

func TestEngine_Message_Without_Sender_Is_Accepted_And_Discovers(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	topic := domain.PrivateTopic("u1", "u2")
	f.transport.EXPECT().Subscribe(topic, gomock.Any()).Return(nil).Times(1)

	// When a message carrying only an id and content arrives on an unknown private topic
	content := "hi"
	applied := f.engine.Ingest(topic, domain.Message{ID: "m1", Kind: domain.KindText, Content: &content}, event.SourceTransport)

	// Then it is stored and the session is named after the counterpart
	req.True(applied)
	req.Len(f.store.Get(topic), 1)
	session, ok := f.registry.FindByTopic(topic)
	req.True(ok)
	req.Equal("u2", session.TargetID)
	req.Equal("u2", session.Name)
}

func TestEngine_Targetless_Revoke_Still_Discovers_Session(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	topic := domain.PrivateTopic("u1", "u2")
	f.transport.EXPECT().Subscribe(topic, gomock.Any()).Return(nil).Times(1)

	// When a revoke without target arrives on an unknown private topic
	applied := f.engine.Ingest(topic, domain.Message{ID: "r1", Sender: "u2", Kind: domain.KindRevoke}, event.SourceTransport)

	// Then the session is discovered but nothing is stored
	req.False(applied)
	_, ok := f.registry.FindByTopic(topic)
	req.True(ok)
	req.Empty(f.store.Get(topic))
	req.Equal(float64(1), testutil.ToFloat64(f.metrics.Ingested.WithLabelValues(string(event.SourceTransport), observability.OutcomeRevokeMissing)))
	req.Zero(testutil.ToFloat64(f.metrics.Ingested.WithLabelValues(string(event.SourceTransport), observability.OutcomeMalformed)))
}

func TestEngine_Untyped_Message_Is_Text(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	content := "legacy"

	// When a payload comes without type and claims to be revoked
	applied := f.engine.Ingest(domain.LobbyTopic,
		domain.Message{ID: "m1", Sender: "u2", Content: &content, Revoked: true}, event.SourceTransport)

	// Then it is stored as a visible text message
	req.True(applied)
	msg, ok := f.store.Find(domain.LobbyTopic, "m1")
	req.True(ok)
	req.Equal(domain.KindText, msg.Kind)
	req.False(msg.Revoked)
}

func TestEngine_Auto_Discovery_Of_Private_Topic(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	topic := domain.PrivateTopic("u1", "u2")

	// Given the discovered topic gets exactly one subscription
	f.transport.EXPECT().Subscribe(topic, gomock.Any()).Return(nil).Times(1)

	// When a message from u2 arrives on an unknown private topic
	req.True(f.engine.Ingest(topic, textMessage("m1", "u2", "bob", "hey"), event.SourceTransport))

	// Then a private session targeting u2 exists for that topic
	session, ok := f.registry.FindByTopic(topic)
	req.True(ok)
	req.Equal("u2", session.TargetID)
	req.Equal("bob", session.Name)
	req.Equal(domain.PrivateKind, session.Kind)
	req.Equal(domain.PrivateAvatar, session.Avatar)
	req.Equal(topic, session.Topic)
	req.Len(f.store.Get(topic), 1)

	// When another message arrives on the same topic
	req.True(f.engine.Ingest(topic, textMessage("m2", "u2", "bob", "again"), event.SourceTransport))

	// Then no additional session is created
	req.Len(f.registry.List(), 2)
	req.Equal(float64(1), testutil.ToFloat64(f.metrics.Discovered))

	events := drainEvents(f.engine)
	req.Len(events, 3)
	created, ok := events[0].(event.SessionCreated)
	req.True(ok)
	req.True(created.Discovered)
}

func TestEngine_Auto_Discovery_Falls_Back_To_Counterpart_Name(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	topic := domain.PrivateTopic("u1", "u2")
	f.transport.EXPECT().Subscribe(topic, gomock.Any()).Return(fmt.Errorf("not connected")).Times(1)

	// When the sender advertises no display name and the transport refuses the subscription
	req.True(f.engine.Ingest(topic, textMessage("m1", "u2", "", "hey"), event.SourceTransport))

	// Then the session is still created, named after the counterpart
	session, ok := f.registry.FindByTopic(topic)
	req.True(ok)
	req.Equal("u2", session.Name)
}

func TestEngine_Concurrent_Discovery_Creates_One_Session(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	topic := domain.PrivateTopic("u1", "u2")
	f.transport.EXPECT().Subscribe(topic, gomock.Any()).Return(nil).Times(1)

	// When the first messages of a new topic race from several sources
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := event.SourceTransport
			if i%2 == 0 {
				source = event.SourceEcho
			}
			f.engine.Ingest(topic, textMessage(fmt.Sprintf("m%d", i%5), "u2", "bob", "hey"), source)
		}(i)
	}
	wg.Wait()

	// Then a single session exists and each id is stored once
	req.Len(f.registry.List(), 2)
	req.Len(f.store.Get(topic), 5)
}

func TestEngine_Transport_Subscription_Feeds_Ingest(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)

	var handler contract.MessageHandler
	f.transport.EXPECT().Subscribe(domain.LobbyTopic, gomock.Any()).DoAndReturn(
		func(topic string, h contract.MessageHandler) error {
			handler = h
			return nil
		}).Times(1)

	// Given every known session is subscribed
	f.engine.SubscribeAll()
	req.NotNil(handler)

	// When the transport delivers a message
	handler(textMessage("m1", "u2", "bob", "from the network"))

	// Then it reaches the store
	req.Len(f.store.Get(domain.LobbyTopic), 1)
	req.Equal(float64(1), testutil.ToFloat64(f.metrics.Ingested.WithLabelValues(string(event.SourceTransport), observability.OutcomeApplied)))
}

func TestEngine_Send_Survives_Transport_And_Echo_Failures(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 0)

	// Given a broken echo bus and no room left in the transport queue
	f.echo.EXPECT().Publish(gomock.Any()).Return(fmt.Errorf("bus closed")).Times(1)

	// When a message is sent
	msg, err := f.engine.Send(domain.LobbyID, "still here", "", "")

	// Then the sender sees it anyway
	req.NoError(err)
	req.Equal(domain.KindText, msg.Kind)
	req.Len(f.store.Get(domain.LobbyTopic), 1)
	req.Equal(float64(1), testutil.ToFloat64(f.metrics.Published.WithLabelValues(observability.ResultDropped)))
}

func TestEngine_Send_Rejections(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	req.True(f.engine.Ingest(domain.LobbyTopic, textMessage("m1", "u2", "bob", "hello"), event.SourceTransport))

	_, err := f.engine.Send("missing", "hi", domain.KindText, "")
	req.ErrorIs(err, errors.ErrSessionNotFound)

	_, err = f.engine.Send(domain.LobbyID, "   ", domain.KindText, "")
	req.ErrorIs(err, errors.ErrEmptyContent)

	_, err = f.engine.Send(domain.LobbyID, "", domain.KindRevoke, "")
	req.ErrorIs(err, errors.ErrMalformedMessage)

	// A message authored by someone else can't be revoked
	_, err = f.engine.Send(domain.LobbyID, "", domain.KindRevoke, "m1")
	req.ErrorIs(err, errors.ErrNotMessageOwner)

	req.Len(f.store.Get(domain.LobbyTopic), 1)
	req.False(f.store.Get(domain.LobbyTopic)[0].Revoked)
	req.Empty(f.engine.Outbound())
}

func TestEngine_Delete_Lobby_Is_Protected(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	before := f.engine.Sessions()

	err := f.engine.DeleteSession(domain.LobbyID)

	req.ErrorIs(err, errors.ErrProtectedSession)
	req.Equal(before, f.engine.Sessions())
}

func TestEngine_Session_Lifecycle(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	f.transport.EXPECT().Subscribe(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	// When a private chat is started twice with the same peer
	private, err := f.engine.StartPrivate("u2")
	req.NoError(err)
	again, err := f.engine.StartPrivate(" u2 ")
	req.NoError(err)

	// Then the existing session is reused
	req.Equal(private.ID, again.ID)
	req.Equal(domain.PrivateTopic("u1", "u2"), private.Topic)
	req.Equal("u2", private.TargetID)

	// When a group is created and another one joined
	group, err := f.engine.CreateGroup("team")
	req.NoError(err)
	req.Equal(domain.GroupAvatar, group.Avatar)
	joined, err := f.engine.JoinGroup(domain.GroupTopic("abc"), "")
	req.NoError(err)
	req.Equal(domain.JoinedAvatar, joined.Avatar)
	req.Equal("group-abc", joined.Name)

	// Then the most recent session comes first
	sessions := f.engine.Sessions()
	req.Len(sessions, 4)
	req.Equal(joined.ID, sessions[0].ID)

	// When the group is deleted
	f.transport.EXPECT().Unsubscribe(group.Topic).Times(1)
	req.NoError(f.engine.DeleteSession(group.ID))

	// Then it is gone
	_, err = f.engine.Session(group.ID)
	req.ErrorIs(err, errors.ErrSessionNotFound)
	req.ErrorIs(f.engine.DeleteSession(group.ID), errors.ErrSessionNotFound)
}

func TestEngine_Session_Input_Validation(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)

	_, err := f.engine.StartPrivate("")
	req.ErrorIs(err, errors.ErrInvalidPeer)
	_, err = f.engine.StartPrivate("u1")
	req.ErrorIs(err, errors.ErrInvalidPeer)
	_, err = f.engine.StartPrivate("u-2")
	req.ErrorIs(err, errors.ErrInvalidPeer)
	_, err = f.engine.CreateGroup(" ")
	req.ErrorIs(err, errors.ErrEmptySessionName)
	_, err = f.engine.JoinGroup("not a topic", "x")
	req.ErrorIs(err, errors.ErrInvalidTopic)

	req.Len(f.engine.Sessions(), 1)
}

func TestEngine_DeleteLocal(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	req.True(f.engine.Ingest(domain.LobbyTopic, textMessage("m1", "u2", "bob", "hello"), event.SourceTransport))

	// When the message is deleted locally
	req.NoError(f.engine.DeleteLocal(domain.LobbyID, "m1"))

	// Then it disappears from this view only, nothing is published
	messages, err := f.engine.Messages(domain.LobbyID)
	req.NoError(err)
	req.Empty(messages)
	req.Empty(f.engine.Outbound())
	req.ErrorIs(f.engine.DeleteLocal(domain.LobbyID, "m1"), errors.ErrMessageNotFound)
	req.ErrorIs(f.engine.DeleteLocal("missing", "m1"), errors.ErrSessionNotFound)
}

func TestEngine_SetNickname(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)

	_, err := f.engine.SetNickname("  ")
	req.ErrorIs(err, errors.ErrEmptyNickname)

	identity, err := f.engine.SetNickname(" Alice ")
	req.NoError(err)
	req.Equal("Alice", identity.Nickname)
	req.Equal("u1", identity.UserID)

	// Then the nickname is persisted and used by later sends
	stored, ok, err := f.identities.Load()
	req.NoError(err)
	req.True(ok)
	req.Equal("Alice", stored.Nickname)
	req.Equal("Alice", f.engine.Identity().Nickname)
}

func TestEngine_SetStatus_Notifies_Transitions_Only(t *testing.T) {
	req := require.New(t)
	f := newEngineFixture(t, domain.Identity{UserID: "u1", Nickname: "alice"}, 8)
	req.Equal(domain.StatusConnecting, f.engine.Status())

	f.engine.SetStatus(domain.StatusDegraded)
	f.engine.SetStatus(domain.StatusDegraded)
	f.engine.SetStatus(domain.StatusOnline)

	req.Equal(domain.StatusOnline, f.engine.Status())
	events := drainEvents(f.engine)
	req.Len(events, 2)
	req.Equal(event.StatusChanged{Status: domain.StatusDegraded}, events[0])
}
