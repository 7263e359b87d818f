package runtime

import (
	"log/slog"
	"mini-chat/domain"
	"mini-chat/errors"
	"mini-chat/infrastructure/storage"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func setupTestKV(t *testing.T) *storage.BadgerKV {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewBadgerKV(db, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestRegistry_Lobby_Is_Always_Present(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log, storage.NewSessionRepository(setupTestKV(t)))

	// When nothing has been persisted yet
	err := registry.Load()

	// Then only the lobby is known
	req.NoError(err)
	sessions := registry.List()
	req.Len(sessions, 1)
	req.True(sessions[0].IsLobby())

	lobby, ok := registry.FindByTopic(domain.LobbyTopic)
	req.True(ok)
	req.Equal(domain.LobbyID, lobby.ID)
}

func TestRegistry_Create_Inserts_At_Head(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log, storage.NewSessionRepository(setupTestKV(t)))
	now := time.Now()

	// When two sessions are created one after the other
	first, err := registry.Create(domain.NewGroupSession("first", now))
	req.NoError(err)
	second, err := registry.Create(domain.NewGroupSession("second", now.Add(time.Second)))
	req.NoError(err)

	// Then the most recent one comes first and the lobby stays last
	sessions := registry.List()
	req.Len(sessions, 3)
	req.Equal(second.ID, sessions[0].ID)
	req.Equal(first.ID, sessions[1].ID)
	req.True(sessions[2].IsLobby())

	found, ok := registry.FindByID(first.ID)
	req.True(ok)
	req.Equal(first.Topic, found.Topic)
}

func TestRegistry_Create_Duplicate_Topic_Returns_Existing(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log, storage.NewSessionRepository(setupTestKV(t)))
	topic := domain.PrivateTopic("ID_aaaa1111", "ID_bbbb2222")

	// Given a private session already bound to the topic
	existing, err := registry.Create(domain.NewPrivateSession("bob", topic, "ID_bbbb2222", time.Now()))
	req.NoError(err)

	// When another session is created for the same topic
	got, err := registry.Create(domain.NewPrivateSession("bobby", topic, "ID_bbbb2222", time.Now()))

	// Then the existing session is handed back
	req.ErrorIs(err, errors.ErrDuplicateTopic)
	req.Equal(existing, got)
	req.Len(registry.List(), 2)
}

func TestRegistry_Remove_Lobby_Is_Protected(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log, storage.NewSessionRepository(setupTestKV(t)))
	_, err := registry.Create(domain.NewGroupSession("team", time.Now()))
	req.NoError(err)
	before := registry.List()

	// When the lobby is deleted
	_, err = registry.Remove(domain.LobbyID)

	// Then the call is rejected and the list is unchanged
	req.ErrorIs(err, errors.ErrProtectedSession)
	req.Equal(before, registry.List())
}

func TestRegistry_Remove(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log, storage.NewSessionRepository(setupTestKV(t)))
	session, err := registry.Create(domain.NewGroupSession("team", time.Now()))
	req.NoError(err)

	// When the group is removed
	removed, err := registry.Remove(session.ID)

	// Then it can't be found anymore
	req.NoError(err)
	req.Equal(session.ID, removed.ID)
	_, ok := registry.FindByTopic(session.Topic)
	req.False(ok)
	_, ok = registry.FindByID(session.ID)
	req.False(ok)

	// And removing it again fails
	_, err = registry.Remove(session.ID)
	req.ErrorIs(err, errors.ErrSessionNotFound)
}

func TestRegistry_Load_Restores_Persisted_Sessions(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repository := storage.NewSessionRepository(setupTestKV(t))
	registry := NewRegistry(log, repository)
	created, err := registry.Create(domain.NewJoinedSession("friends", domain.GroupTopic("abc"), time.Now().UTC()))
	req.NoError(err)

	// When a new registry loads the same repository
	restored := NewRegistry(log, repository)
	req.NoError(restored.Load())

	// Then the same ordered list comes back
	sessions := restored.List()
	req.Len(sessions, 2)
	req.Equal(created.ID, sessions[0].ID)
	req.Equal(created.Topic, sessions[0].Topic)
	req.True(sessions[1].IsLobby())
}

func TestRegistry_Load_Appends_Missing_Lobby(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repository := storage.NewSessionRepository(setupTestKV(t))
	group := domain.NewGroupSession("team", time.Now().UTC())

	// Given a snapshot without the lobby
	req.NoError(repository.Save([]domain.Session{group}))

	// When the registry loads it
	registry := NewRegistry(log, repository)
	req.NoError(registry.Load())

	// Then the lobby is appended after the persisted sessions
	sessions := registry.List()
	req.Len(sessions, 2)
	req.Equal(group.ID, sessions[0].ID)
	req.True(sessions[1].IsLobby())
}
