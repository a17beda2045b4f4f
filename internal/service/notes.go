package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fractalnote/internal/domain"
	"fractalnote/internal/logger"
	"fractalnote/internal/metrics"
	"fractalnote/internal/store"
)

// Notes is the caller-facing surface of one store. Every mutation takes the
// exclusive store lock, checks the client's token, runs in the engine and
// bumps the token before the lock is released.
type Notes struct {
	handle  *store.Handle
	engine  *Engine
	guard   *Guard
	bus     *EventBus
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewNotes creates the service for an open store. bus and m may be nil.
func NewNotes(h *store.Handle, bus *EventBus, m *metrics.Metrics, log zerolog.Logger) *Notes {
	if bus == nil {
		bus = NewEventBus()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Notes{
		handle:  h,
		engine:  NewEngine(h.DB(), log, m),
		guard:   NewGuard(h),
		bus:     bus,
		metrics: m,
		log:     logger.Component(log, "notes"),
	}
}

// Events returns the bus mutations are published on
func (s *Notes) Events() *EventBus {
	return s.bus
}

// CreateRequest describes a node to add
type CreateRequest struct {
	ParentID int64  `json:"parent_id"`
	Title    string `json:"title"`
	Sequence int    `json:"sequence"`
	Content  string `json:"content,omitempty"`
	IsRich   bool   `json:"is_rich,omitempty"`
}

// UpdateRequest changes an existing node. When NewParentID is set the node
// is moved (and Sequence applies); otherwise Title and Content are updated.
// A request cannot do both.
type UpdateRequest struct {
	ID          int64   `json:"id"`
	Title       *string `json:"title,omitempty"`
	Content     *string `json:"content,omitempty"`
	NewParentID *int64  `json:"new_parent_id,omitempty"`
	Sequence    *int    `json:"sequence,omitempty"`
}

// IsMove reports whether the request reparents the node
func (r UpdateRequest) IsMove() bool {
	return r.NewParentID != nil
}

// Result is the outcome of a mutation: the token the client must send next
// and the affected node.
type Result struct {
	Token store.Token `json:"token"`
	ID    int64       `json:"id,omitempty"`
}

// Token returns the current version token of the store
func (s *Notes) Token(ctx context.Context) (store.Token, error) {
	lk, err := s.rlock(ctx)
	if err != nil {
		return 0, err
	}
	defer lk.Close()
	return s.guard.CurrentToken()
}

// Create adds a node under req.ParentID
func (s *Notes) Create(ctx context.Context, token store.Token, req CreateRequest) (Result, error) {
	title := func() (string, error) { return req.Title, nil }

	res, err := s.mutate(ctx, "create", token, title, func() (int64, error) {
		return s.engine.Create(ctx, CreateParams(req))
	})
	if err == nil {
		s.publish(EventNodeCreated, res, req)
	}
	return res, err
}

// Update changes a node's content or moves it, depending on the request
func (s *Notes) Update(ctx context.Context, token store.Token, req UpdateRequest) (Result, error) {
	if req.ID <= domain.RootID {
		return Result{}, domain.NotFoundf("node %d", req.ID)
	}

	if req.IsMove() && (req.Title != nil || req.Content != nil) {
		return Result{}, domain.InvalidArgumentf("node %d: move and content update in one request", req.ID)
	}

	op, event := "update", EventNodeUpdated
	if req.IsMove() {
		op, event = "move", EventNodeMoved
	}

	res, err := s.mutate(ctx, op, token, s.storedTitle(ctx, req.ID), func() (int64, error) {
		if req.IsMove() {
			_, err := s.engine.UpdateReparent(ctx, req.ID, *req.NewParentID, req.Sequence)
			return req.ID, err
		}
		return req.ID, s.engine.UpdateContent(ctx, req.ID, req.Title, req.Content)
	})
	if err == nil {
		s.publish(event, res, req)
	}
	return res, err
}

// Delete removes a node and its subtree
func (s *Notes) Delete(ctx context.Context, token store.Token, id int64) (Result, error) {
	if id <= domain.RootID {
		return Result{}, domain.NotFoundf("node %d", id)
	}

	res, err := s.mutate(ctx, "delete", token, s.storedTitle(ctx, id), func() (int64, error) {
		return id, s.engine.Delete(ctx, id)
	})
	if err == nil {
		s.publish(EventNodeDeleted, res, nil)
	}
	return res, err
}

// Init prepares an empty store with a first top-level node. A store that
// already holds nodes is left alone and reported as ErrNoChanges.
func (s *Notes) Init(ctx context.Context, rootTitle string) (Result, error) {
	started := time.Now()

	res, err := func() (Result, error) {
		lk, err := s.lock(ctx)
		if err != nil {
			return Result{}, err
		}
		defer lk.Close()

		tree, err := s.engine.BuildTree(ctx)
		if err != nil {
			return Result{}, err
		}
		if tree.Len() > 0 {
			tok, err := s.guard.CurrentToken()
			if err != nil {
				return Result{}, err
			}
			return Result{Token: tok}, fmt.Errorf("store already initialised: %w", domain.ErrNoChanges)
		}

		id, err := s.engine.Create(ctx, CreateParams{ParentID: domain.RootID, Title: rootTitle})
		if err != nil {
			return Result{}, err
		}
		return s.bump(id)
	}()

	s.observe("init", started, res, err)
	if err == nil {
		s.publish(EventNodeCreated, res, nil)
	}
	return res, err
}

// FindNode returns a single node
func (s *Notes) FindNode(ctx context.Context, id int64) (*domain.Node, error) {
	lk, err := s.rlock(ctx)
	if err != nil {
		return nil, err
	}
	defer lk.Close()
	return s.engine.FindNode(ctx, id)
}

// BuildTree returns the whole hierarchy together with the token it was read at
func (s *Notes) BuildTree(ctx context.Context) (*domain.Tree, store.Token, error) {
	lk, err := s.rlock(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer lk.Close()

	tree, err := s.engine.BuildTree(ctx)
	if err != nil {
		return nil, 0, err
	}
	tok, err := s.guard.CurrentToken()
	if err != nil {
		return nil, 0, err
	}

	s.metrics.NodesTotal.Set(float64(tree.Len()))
	return tree, tok, nil
}

// Verify reports every broken invariant of the stored tree
func (s *Notes) Verify(ctx context.Context) ([]domain.Violation, error) {
	lk, err := s.rlock(ctx)
	if err != nil {
		return nil, err
	}
	defer lk.Close()

	violations, err := s.engine.Verify(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := s.guard.CurrentToken()
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("violations", len(violations)).Msg("store verified")
	s.bus.Publish(Event{Type: EventStoreVerified, Token: tok, Payload: len(violations)})
	return violations, nil
}

// Watch publishes EventTokenChanged for every change of the store's token,
// including changes made by other processes, until ctx is done.
func (s *Notes) Watch(ctx context.Context, debounce time.Duration) error {
	w := store.NewWatcher(s.handle.Path(), func(tok store.Token) {
		s.bus.Publish(Event{Type: EventTokenChanged, Token: tok})
	}).WithDebounce(debounce).WithLogger(s.log)

	err := w.Watch(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// mutate runs fn under the exclusive lock after the freshness check, and
// bumps the token when fn succeeds.
func (s *Notes) mutate(ctx context.Context, op string, token store.Token, displayName func() (string, error), fn func() (int64, error)) (Result, error) {
	started := time.Now()

	res, err := func() (Result, error) {
		lk, err := s.lock(ctx)
		if err != nil {
			return Result{}, err
		}
		defer lk.Close()

		if err := s.guard.CheckFresh(token, displayName); err != nil {
			return Result{}, err
		}

		id, err := fn()
		if err != nil {
			return Result{}, err
		}
		return s.bump(id)
	}()

	s.observe(op, started, res, err)
	return res, err
}

// bump advances the token after a commit
func (s *Notes) bump(id int64) (Result, error) {
	tok, err := s.handle.Touch()
	if err != nil {
		return Result{}, fmt.Errorf("committed but failed to bump version token: %w", err)
	}
	s.metrics.TokenBumpsTotal.Inc()
	return Result{Token: tok, ID: id}, nil
}

func (s *Notes) observe(op string, started time.Time, res Result, err error) {
	s.metrics.ObserveMutation(op, started, err)
	logger.Op(s.log, op, started, err).
		Int64("node_id", res.ID).
		Stringer("token", res.Token).
		Msg("mutation")
}

func (s *Notes) publish(t EventType, res Result, payload any) {
	s.bus.Publish(Event{Type: t, Token: res.Token, NodeID: res.ID, Payload: payload})
}

// storedTitle names a node by its current title for conflict errors
func (s *Notes) storedTitle(ctx context.Context, id int64) func() (string, error) {
	return func() (string, error) {
		n, err := s.engine.FindNode(ctx, id)
		if err != nil {
			return "", err
		}
		return n.Title, nil
	}
}

func (s *Notes) lock(ctx context.Context) (*store.Lock, error) {
	started := time.Now()
	lk, err := s.handle.Lock(ctx)
	s.metrics.ObserveLockWait("exclusive", time.Since(started))
	return lk, err
}

func (s *Notes) rlock(ctx context.Context) (*store.Lock, error) {
	started := time.Now()
	lk, err := s.handle.RLock(ctx)
	s.metrics.ObserveLockWait("shared", time.Since(started))
	return lk, err
}
