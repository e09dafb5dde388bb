package collection

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcg_catalog/config"
	"tcg_catalog/events"
)

type recorder struct {
	mu     sync.Mutex
	events []*events.CollectionChangedEvent
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.(*events.CollectionChangedEvent))
}

func (r *recorder) last(t *testing.T) *events.CollectionChangedEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events)
	return r.events[len(r.events)-1]
}

func newTestStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	rec := &recorder{}
	store := NewStore(db, rec, zerolog.Nop())
	require.NoError(t, store.Migrate(context.Background()))
	return store, rec
}

func TestMigrate_Idempotent(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestLoad_Empty(t *testing.T) {
	store, _ := newTestStore(t)

	c, err := store.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", c.UserID)
	assert.Zero(t, c.OwnedCount())
	assert.Zero(t, c.WishlistCount())
	assert.Empty(t, c.OwnedIDs())
}

func TestToggleOwned(t *testing.T) {
	ctx := context.Background()
	store, rec := newTestStore(t)

	owned, err := store.ToggleOwned(ctx, "alice", "base1-4")
	require.NoError(t, err)
	assert.True(t, owned)

	ev := rec.last(t)
	assert.Equal(t, events.ActionOwned, ev.Action)
	assert.True(t, ev.Owned)
	assert.Equal(t, 1, ev.Quantity)

	c, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, c.IsOwned("base1-4"))
	assert.Equal(t, 1, c.Quantity("base1-4"))

	owned, err = store.ToggleOwned(ctx, "alice", "base1-4")
	require.NoError(t, err)
	assert.False(t, owned)
	assert.False(t, rec.last(t).Owned)

	c, err = store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, c.IsOwned("base1-4"))
	assert.Zero(t, c.Quantity("base1-4"))
}

func TestToggleWishlist(t *testing.T) {
	ctx := context.Background()
	store, rec := newTestStore(t)

	wishlisted, err := store.ToggleWishlist(ctx, "alice", "base1-58")
	require.NoError(t, err)
	assert.True(t, wishlisted)
	assert.Equal(t, events.ActionWishlist, rec.last(t).Action)
	assert.True(t, rec.last(t).Wishlisted)

	c, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, c.IsWishlisted("base1-58"))
	assert.False(t, c.IsOwned("base1-58"))

	wishlisted, err = store.ToggleWishlist(ctx, "alice", "base1-58")
	require.NoError(t, err)
	assert.False(t, wishlisted)
}

func TestUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.ToggleOwned(ctx, "alice", "base1-4")
	require.NoError(t, err)
	_, err = store.ToggleWishlist(ctx, "bob", "base1-4")
	require.NoError(t, err)

	alice, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	bob, err := store.Load(ctx, "bob")
	require.NoError(t, err)

	assert.True(t, alice.IsOwned("base1-4"))
	assert.False(t, alice.IsWishlisted("base1-4"))
	assert.False(t, bob.IsOwned("base1-4"))
	assert.True(t, bob.IsWishlisted("base1-4"))
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	store, rec := newTestStore(t)

	require.NoError(t, store.UpdateQuantity(ctx, "alice", "base1-4", 3))
	c, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Quantity("base1-4"))
	assert.Equal(t, 3, rec.last(t).Quantity)

	require.NoError(t, store.UpdateQuantity(ctx, "alice", "base1-4", 5))
	c, err = store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, c.Quantity("base1-4"))
	assert.Equal(t, 1, c.OwnedCount())

	require.NoError(t, store.UpdateQuantity(ctx, "alice", "base1-4", 0))
	c, err = store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, c.IsOwned("base1-4"))
	assert.False(t, rec.last(t).Owned)
	assert.Zero(t, rec.last(t).Quantity)

	require.NoError(t, store.UpdateQuantity(ctx, "alice", "base1-5", -2))
	c, err = store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, c.OwnedCount())
}

func TestToggleAfterQuantity(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.UpdateQuantity(ctx, "alice", "base1-4", 4))
	owned, err := store.ToggleOwned(ctx, "alice", "base1-4")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestToggleOwned_RowWrittenElsewhere(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Another writer inserted the row first; the toggle removes it instead
	// of failing on the unique key.
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO user_collections (id, user_id, card_id, quantity) VALUES ('other', 'alice', 'base1-4', 2)`)
	require.NoError(t, err)

	owned, err := store.ToggleOwned(ctx, "alice", "base1-4")
	require.NoError(t, err)
	assert.False(t, owned)

	c, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, c.IsOwned("base1-4"))
}

func TestToggleWishlist_Concurrent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ToggleWishlist(ctx, "alice", "base1-58")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	c, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.LessOrEqual(t, c.WishlistCount(), 1)
}

func TestMissingIDs(t *testing.T) {
	ctx := context.Background()
	store, rec := newTestStore(t)

	_, err := store.Load(ctx, "")
	assert.ErrorIs(t, err, ErrNoUser)

	_, err = store.ToggleOwned(ctx, "", "base1-4")
	assert.ErrorIs(t, err, ErrNoUser)

	_, err = store.ToggleWishlist(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrNoCard)

	err = store.UpdateQuantity(ctx, "", "base1-4", 2)
	assert.ErrorIs(t, err, ErrNoUser)

	assert.Empty(t, rec.events)
}

func TestNilPublisher(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	store := NewStore(db, nil, zerolog.Nop())
	require.NoError(t, store.Migrate(context.Background()))
	_, err = store.ToggleOwned(context.Background(), "alice", "base1-4")
	require.NoError(t, err)
}

func TestOpen(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{})
	require.Error(t, err)

	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "collection.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, nil, zerolog.Nop())
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.UpdateQuantity(context.Background(), "alice", "sv1-1", 2))
}
