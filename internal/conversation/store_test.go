package conversation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns successive instants one second apart.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	st, err := Open("sqlite://:memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	clock := &fakeClock{t: time.Date(2024, 3, 5, 14, 7, 0, 0, time.Local)}
	st.now = clock.now
	return st, clock
}

func TestCreateConversation_DefaultTitle(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	conv, err := st.CreateConversation(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, "Conversation 2024-03-05 14:07", conv.Title)
	assert.NotZero(t, conv.ID)
	_, err = uuid.Parse(conv.UUID)
	assert.NoError(t, err, "external id must be a uuid")
	assert.Nil(t, conv.EndTime)
}

func TestCreateConversation_ExplicitTitle(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	conv, err := st.CreateConversation(ctx, "Budget review")
	require.NoError(t, err)
	assert.Equal(t, "Budget review", conv.Title)

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.UUID, got.UUID)
	assert.Equal(t, "Budget review", got.Title)
}

func TestCreateConversation_UniqueIDs(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	a, err := st.CreateConversation(ctx, "")
	require.NoError(t, err)
	b, err := st.CreateConversation(ctx, "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.UUID, b.UUID)
}

func TestAddMessage_RoundTripOrdered(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	conv, err := st.CreateConversation(ctx, "")
	require.NoError(t, err)

	const n = 6
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		_, err := st.AddMessage(ctx, conv.ID, role, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	msgs, err := st.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("message %d", i), m.Content)
		if i%2 == 0 {
			assert.Equal(t, RoleUser, m.Role)
		} else {
			assert.Equal(t, RoleAssistant, m.Role)
		}
		if i > 0 {
			assert.False(t, m.Timestamp.Before(msgs[i-1].Timestamp), "timestamps must be non-decreasing")
		}
	}

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(msgs[n-1].Timestamp))
}

func TestAddMessage_SameTimestampKeepsInsertOrder(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	conv, err := st.CreateConversation(ctx, "")
	require.NoError(t, err)

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return fixed }
	for _, c := range []string{"first", "second", "third"} {
		_, err := st.AddMessage(ctx, conv.ID, RoleUser, c)
		require.NoError(t, err)
	}

	msgs, err := st.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[2].Content)
}

func TestAddMessage_MissingConversation(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.AddMessage(ctx, 999, RoleUser, "hello")
	assert.ErrorIs(t, err, ErrNotFound)

	var count int64
	require.NoError(t, st.db.Model(&Message{}).Count(&count).Error)
	assert.Zero(t, count, "no orphan message may be written")
}

func TestAddMessage_InvalidRole(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	conv, err := st.CreateConversation(ctx, "")
	require.NoError(t, err)

	_, err = st.AddMessage(ctx, conv.ID, Role("system"), "x")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestMessages_MissingConversation(t *testing.T) {
	st, _ := newTestStore(t)
	_, err := st.Messages(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversations_MostRecentFirst(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	var ids []uint
	for _, title := range []string{"oldest", "middle", "newest"} {
		c, err := st.CreateConversation(ctx, title)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	convs, err := st.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "newest", convs[0].Title)
	assert.Equal(t, "middle", convs[1].Title)
	assert.Equal(t, "oldest", convs[2].Title)
	assert.Equal(t, ids[2], convs[0].ID)
}

func TestListConversations_Empty(t *testing.T) {
	st, _ := newTestStore(t)
	convs, err := st.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestDeleteConversation_Cascades(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	keep, err := st.CreateConversation(ctx, "keep")
	require.NoError(t, err)
	drop, err := st.CreateConversation(ctx, "drop")
	require.NoError(t, err)
	for _, id := range []uint{keep.ID, drop.ID} {
		_, err := st.AddMessage(ctx, id, RoleUser, "q")
		require.NoError(t, err)
		_, err = st.AddMessage(ctx, id, RoleAssistant, "a")
		require.NoError(t, err)
	}

	require.NoError(t, st.DeleteConversation(ctx, drop.ID))

	_, err = st.GetConversation(ctx, drop.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int64
	require.NoError(t, st.db.Model(&Message{}).Where("conversation_id = ?", drop.ID).Count(&orphans).Error)
	assert.Zero(t, orphans)

	msgs, err := st.Messages(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	assert.ErrorIs(t, st.DeleteConversation(ctx, drop.ID), ErrNotFound)
}

func TestPing(t *testing.T) {
	st, _ := newTestStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestOpen_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "conversations.db")
	url := "sqlite:///" + path

	st, err := Open(url, nil)
	require.NoError(t, err)
	conv, err := st.CreateConversation(context.Background(), "persisted")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(url, nil)
	require.NoError(t, err)
	defer st.Close()
	got, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)
}

func TestOpen_ForeignKeysOnEveryConnection(t *testing.T) {
	st, err := Open("sqlite:///"+filepath.Join(t.TempDir(), "fk.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	sqlDB, err := st.db.DB()
	require.NoError(t, err)
	// Drop idle connections so each query runs on a fresh one.
	sqlDB.SetMaxIdleConns(0)

	for i := 0; i < 2; i++ {
		var on int
		require.NoError(t, sqlDB.QueryRow("PRAGMA foreign_keys").Scan(&on))
		assert.Equal(t, 1, on, "query %d", i)
	}

	err = st.db.Create(&Message{UUID: uuid.NewString(), ConversationID: 999, Role: RoleUser, Content: "orphan", Timestamp: time.Now()}).Error
	assert.Error(t, err, "message without a conversation must be rejected")
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "conversations.db?_foreign_keys=on", sqliteDSN("conversations.db"))
	assert.Equal(t, ":memory:?_foreign_keys=on", sqliteDSN(":memory:"))
	assert.Equal(t, "x.db?cache=shared&_foreign_keys=on", sqliteDSN("x.db?cache=shared"))
}

func TestOpen_UnsupportedURL(t *testing.T) {
	_, err := Open("mysql://localhost/db", nil)
	assert.ErrorContains(t, err, "unsupported database url")

	_, err = Open("sqlite://", nil)
	assert.Error(t, err)
}

func TestSQLitePath(t *testing.T) {
	cases := map[string]string{
		"sqlite:///conversations.db":      "conversations.db",
		"sqlite:////var/lib/bizrag.db":    "/var/lib/bizrag.db",
		"sqlite://:memory:":               ":memory:",
		"sqlite:///data/conversations.db": "data/conversations.db",
	}
	for in, want := range cases {
		assert.Equal(t, want, SQLitePath(in), in)
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("assistant")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, r)

	_, err = ParseRole("User")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
