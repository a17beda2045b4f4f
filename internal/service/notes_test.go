package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"fractalnote/internal/domain"
	"fractalnote/internal/metrics"
	"fractalnote/internal/store"
)

type notesFixture struct {
	notes   *Notes
	handle  *store.Handle
	metrics *metrics.Metrics
	events  chan Event
}

func newTestNotes(t *testing.T) *notesFixture {
	t.Helper()
	h, err := store.Create(t.Context(), filepath.Join(t.TempDir(), "notes.ctb"), store.Options{LockTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	m := metrics.New(prometheus.NewRegistry())
	bus := NewEventBus()
	events := make(chan Event, 16)
	bus.Subscribe(events)

	n := NewNotes(h, bus, m, zerolog.Nop())
	_, err = n.Init(t.Context(), "Root")
	require.NoError(t, err)

	// Drain the init event so tests only see their own
	<-events
	return &notesFixture{notes: n, handle: h, metrics: m, events: events}
}

func (f *notesFixture) token(t *testing.T) store.Token {
	t.Helper()
	tok, err := f.notes.Token(t.Context())
	require.NoError(t, err)
	return tok
}

func TestInit(t *testing.T) {
	f := newTestNotes(t)

	tree, _, err := f.notes.BuildTree(t.Context())
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1)
	require.Equal(t, "Root", tree.Roots[0].Title)

	before := f.token(t)
	res, err := f.notes.Init(t.Context(), "Again")
	require.ErrorIs(t, err, domain.ErrNoChanges)
	require.Equal(t, before, res.Token)
	require.Equal(t, before, f.token(t))
}

func TestCreateReturnsNewToken(t *testing.T) {
	f := newTestNotes(t)
	before := f.token(t)

	res, err := f.notes.Create(t.Context(), before, CreateRequest{ParentID: 0, Title: "Root2", Sequence: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.ID)
	require.Greater(t, res.Token, before)
	require.Equal(t, res.Token, f.token(t))

	ev := <-f.events
	require.Equal(t, EventNodeCreated, ev.Type)
	require.Equal(t, res.Token, ev.Token)
	require.Equal(t, int64(2), ev.NodeID)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MutationsTotal.WithLabelValues("create", "ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TokenBumpsTotal))
}

func TestStaleTokenConflicts(t *testing.T) {
	f := newTestNotes(t)
	stale := f.token(t)

	res, err := f.notes.Create(t.Context(), stale, CreateRequest{ParentID: 1, Title: "child"})
	require.NoError(t, err)
	<-f.events

	tests := []struct {
		name  string
		call  func() error
		title string
	}{
		{
			name: "create names the requested title",
			call: func() error {
				_, err := f.notes.Create(t.Context(), stale, CreateRequest{ParentID: 1, Title: "mine"})
				return err
			},
			title: "mine",
		},
		{
			name: "update names the stored title",
			call: func() error {
				_, err := f.notes.Update(t.Context(), stale, UpdateRequest{ID: res.ID, Title: ptr("theirs")})
				return err
			},
			title: "child",
		},
		{
			name: "delete names the stored title",
			call: func() error {
				_, err := f.notes.Delete(t.Context(), stale, res.ID)
				return err
			},
			title: "child",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := f.token(t)
			err := tt.call()
			require.ErrorIs(t, err, domain.ErrConflict)

			var ce *domain.ConflictError
			require.True(t, errors.As(err, &ce))
			require.Equal(t, tt.title, ce.Title)

			// Rejected before any write
			require.Equal(t, current, f.token(t))
		})
	}

	n, err := f.notes.FindNode(t.Context(), res.ID)
	require.NoError(t, err)
	require.Equal(t, "child", n.Title)
	require.Len(t, f.events, 0)
}

func TestUpdateDispatch(t *testing.T) {
	f := newTestNotes(t)
	ctx := t.Context()

	a, err := f.notes.Create(ctx, f.token(t), CreateRequest{ParentID: 1, Title: "a"})
	require.NoError(t, err)
	b, err := f.notes.Create(ctx, a.Token, CreateRequest{ParentID: 1, Title: "b", Sequence: 1})
	require.NoError(t, err)
	<-f.events
	<-f.events

	res, err := f.notes.Update(ctx, b.Token, UpdateRequest{ID: a.ID, Title: ptr("a2"), Content: ptr("hello")})
	require.NoError(t, err)
	require.Equal(t, EventNodeUpdated, (<-f.events).Type)

	res, err = f.notes.Update(ctx, res.Token, UpdateRequest{ID: b.ID, NewParentID: ptr(a.ID), Sequence: ptr(0)})
	require.NoError(t, err)
	require.Equal(t, EventNodeMoved, (<-f.events).Type)

	moved, err := f.notes.FindNode(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, 2, moved.Level)

	// Moving to the current father changes nothing
	_, err = f.notes.Update(ctx, res.Token, UpdateRequest{ID: b.ID, NewParentID: ptr(a.ID)})
	require.ErrorIs(t, err, domain.ErrNoChanges)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MutationsTotal.WithLabelValues("move", "no_changes")))

	// A move cannot carry a title or content edit
	_, err = f.notes.Update(ctx, res.Token, UpdateRequest{ID: b.ID, NewParentID: ptr(int64(1)), Title: ptr("lost")})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	require.Equal(t, res.Token, f.token(t))

	n, err := f.notes.FindNode(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, "b", n.Title)
	require.Equal(t, 2, n.Level)
}

func TestNoChangesKeepsToken(t *testing.T) {
	f := newTestNotes(t)
	before := f.token(t)

	_, err := f.notes.Update(t.Context(), before, UpdateRequest{ID: 1, Title: ptr("Root")})
	require.ErrorIs(t, err, domain.ErrNoChanges)
	require.Equal(t, before, f.token(t))
}

func TestDeleteSoleRootKeepsStore(t *testing.T) {
	f := newTestNotes(t)
	before := f.token(t)

	data, err := os.ReadFile(f.handle.Path())
	require.NoError(t, err)

	_, err = f.notes.Delete(t.Context(), before, 1)
	require.ErrorIs(t, err, domain.ErrLogicViolation)

	after, err := os.ReadFile(f.handle.Path())
	require.NoError(t, err)
	require.Equal(t, data, after)
	require.Equal(t, before, f.token(t))
}

func TestInvalidIDsAreNotFound(t *testing.T) {
	f := newTestNotes(t)
	tok := f.token(t)

	_, err := f.notes.Update(t.Context(), tok, UpdateRequest{ID: 0, Title: ptr("x")})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.notes.Delete(t.Context(), tok, -4)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Stale token on a missing node reports the missing node
	_, err = f.notes.Delete(t.Context(), tok-1, 99)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMutationWaitsForLock(t *testing.T) {
	f := newTestNotes(t)
	tok := f.token(t)

	held, err := f.handle.Lock(t.Context())
	require.NoError(t, err)

	_, err = f.notes.Create(t.Context(), tok, CreateRequest{ParentID: 1, Title: "blocked"})
	require.ErrorIs(t, err, store.ErrLockTimeout)
	require.NoError(t, held.Close())

	_, err = f.notes.Create(t.Context(), tok, CreateRequest{ParentID: 1, Title: "free"})
	require.NoError(t, err)
}

func TestVerifyPublishes(t *testing.T) {
	f := newTestNotes(t)

	violations, err := f.notes.Verify(t.Context())
	require.NoError(t, err)
	require.Empty(t, violations)

	ev := <-f.events
	require.Equal(t, EventStoreVerified, ev.Type)
	require.Equal(t, 0, ev.Payload)
}

func TestGuard(t *testing.T) {
	src := fakeTokens{tok: 42}
	g := NewGuard(src)

	called := false
	name := func() (string, error) { called = true; return "n", nil }

	require.NoError(t, g.CheckFresh(42, name))
	require.False(t, called)

	err := g.CheckFresh(41, name)
	require.ErrorIs(t, err, domain.ErrConflict)
	require.True(t, called)

	lookupErr := domain.NotFoundf("node 3")
	err = g.CheckFresh(41, func() (string, error) { return "", lookupErr })
	require.ErrorIs(t, err, domain.ErrNotFound)
}

type fakeTokens struct {
	tok store.Token
}

func (f fakeTokens) ModifyTime() (store.Token, error) {
	return f.tok, nil
}
