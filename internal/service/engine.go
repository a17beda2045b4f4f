package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"fractalnote/internal/domain"
	"fractalnote/internal/metrics"
	"fractalnote/internal/repository"
	"fractalnote/internal/repository/sqlite"
)

// Engine applies tree mutations inside single transactions. It owns the
// cascades and invariants; locking and version checks belong to Notes.
type Engine struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an engine over an open store database. m may be nil.
func NewEngine(db *sql.DB, log zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		db:      db,
		log:     log.With().Str("component", "engine").Logger(),
		metrics: m,
	}
}

// repos is the set of repositories bound to one transaction
type repos struct {
	nodes     repository.NodeRepository
	relations repository.RelationRepository
	images    repository.AttachmentRepository[domain.Image]
	codeboxes repository.AttachmentRepository[domain.Codebox]
	grids     repository.AttachmentRepository[domain.Grid]
	bookmarks repository.BookmarkRepository
}

func newRepos(q sqlite.DBTX) repos {
	return repos{
		nodes:     sqlite.NewNodeRepository(q),
		relations: sqlite.NewRelationRepository(q),
		images:    sqlite.NewImageRepository(q),
		codeboxes: sqlite.NewCodeboxRepository(q),
		grids:     sqlite.NewGridRepository(q),
		bookmarks: sqlite.NewBookmarkRepository(q),
	}
}

// withTx runs fn in a transaction, committing only when fn succeeds
func (e *Engine) withTx(ctx context.Context, fn func(r repos) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (e *Engine) observeCascade(op string, n int) {
	e.log.Debug().Str("op", op).Int("nodes", n).Msg("cascade finished")
	if e.metrics != nil {
		e.metrics.CascadeNodes.WithLabelValues(op).Observe(float64(n))
	}
}

// CreateParams describes a new node
type CreateParams struct {
	ParentID int64
	Title    string
	Sequence int
	Content  string
	IsRich   bool
}

// Create inserts a node and its relation under ParentID and returns the new id
func (e *Engine) Create(ctx context.Context, p CreateParams) (int64, error) {
	if p.ParentID < domain.RootID {
		return 0, domain.InvalidArgumentf("parent id %d is out of range", p.ParentID)
	}

	var id int64
	err := e.withTx(ctx, func(r repos) error {
		level, err := r.relations.CalculateLevel(ctx, p.ParentID)
		if err != nil {
			return err
		}

		id, err = r.nodes.NextID(ctx)
		if err != nil {
			return err
		}

		n := domain.NewNode(id, p.Title, p.Content, p.IsRich, level)
		if err := r.nodes.Insert(ctx, n); err != nil {
			return err
		}

		return r.relations.Insert(ctx, &domain.Relation{
			NodeID:   id,
			FatherID: p.ParentID,
			Sequence: p.Sequence,
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// move reparents a relation without touching levels. It is only safe as
// the first step of UpdateReparent.
func (e *Engine) move(ctx context.Context, r repos, nodeID, newParentID int64, sequence *int) (*domain.Relation, error) {
	if newParentID < domain.RootID {
		return nil, domain.InvalidArgumentf("parent id %d is out of range", newParentID)
	}

	before, err := r.relations.Find(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	if newParentID != domain.RootID {
		if _, err := r.nodes.Find(ctx, newParentID); err != nil {
			return nil, err
		}
	}

	if err := e.checkAcyclic(ctx, r, nodeID, newParentID); err != nil {
		return nil, err
	}

	after := *before
	after.FatherID = newParentID
	if sequence != nil {
		after.Sequence = *sequence
	}

	if _, err := r.relations.Update(ctx, before, &after); err != nil {
		return nil, err
	}
	return &after, nil
}

// checkAcyclic rejects a move that would hang nodeID below itself by walking
// the ancestors of newParentID up to the virtual root.
func (e *Engine) checkAcyclic(ctx context.Context, r repos, nodeID, newParentID int64) error {
	seen := make(map[int64]bool)
	for cur := newParentID; cur != domain.RootID; {
		if cur == nodeID {
			return domain.InvalidArgumentf("cannot move node %d below itself", nodeID)
		}
		if seen[cur] {
			return fmt.Errorf("%w: ancestors of node %d form a cycle", domain.ErrLogicViolation, newParentID)
		}
		seen[cur] = true

		rel, err := r.relations.Find(ctx, cur)
		if errors.Is(err, domain.ErrNotFound) {
			// Detached ancestor: nodeID cannot be above it
			return nil
		}
		if err != nil {
			return err
		}
		cur = rel.FatherID
	}
	return nil
}

// UpdateContent changes the title and/or body of a node. A body can only be
// written to an editable node.
func (e *Engine) UpdateContent(ctx context.Context, nodeID int64, title, content *string) error {
	return e.withTx(ctx, func(r repos) error {
		before, err := r.nodes.Find(ctx, nodeID)
		if err != nil {
			return err
		}

		after := *before
		if title != nil {
			after.Title = *title
		}
		if content != nil {
			if !before.Editable() {
				return &domain.NotEditableError{IsRich: before.IsRich, IsReadOnly: before.IsReadOnly}
			}
			after.Body = *content
		}

		_, err = r.nodes.Update(ctx, before, &after)
		return err
	})
}

// UpdateReparent moves a node under newParentID, optionally repositioning
// it, and recomputes the level of the node and its whole subtree in the
// same transaction.
func (e *Engine) UpdateReparent(ctx context.Context, nodeID, newParentID int64, sequence *int) (*domain.Relation, error) {
	var rel *domain.Relation
	err := e.withTx(ctx, func(r repos) error {
		var err error
		rel, err = e.move(ctx, r, nodeID, newParentID, sequence)
		if err != nil {
			return err
		}

		level, err := r.relations.CalculateLevel(ctx, newParentID)
		if err != nil {
			return err
		}
		if err := e.setLevel(ctx, r, nodeID, level); err != nil {
			return err
		}

		n, err := e.cascadeLevels(ctx, r, nodeID, level)
		if err != nil {
			return err
		}
		e.observeCascade("reparent", n+1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// setLevel stores a node's level. An unchanged level is not an error here:
// a sibling move keeps the depth.
func (e *Engine) setLevel(ctx context.Context, r repos, nodeID int64, level int) error {
	before, err := r.nodes.Find(ctx, nodeID)
	if err != nil {
		return err
	}
	after := *before
	after.Level = level
	if _, err := r.nodes.Update(ctx, before, &after); err != nil && !errors.Is(err, domain.ErrNoChanges) {
		return err
	}
	return nil
}

// cascadeLevels walks the subtree below rootID breadth first, setting every
// descendant to its parent's level plus one. It returns the number of
// descendants visited.
func (e *Engine) cascadeLevels(ctx context.Context, r repos, rootID int64, rootLevel int) (int, error) {
	type item struct {
		id    int64
		level int
	}

	queue := []item{{rootID, rootLevel}}
	seen := map[int64]bool{rootID: true}
	visited := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		children, err := r.relations.FindChildren(ctx, cur.id)
		if err != nil {
			return 0, err
		}

		for _, child := range children {
			if seen[child.NodeID] {
				return 0, fmt.Errorf("%w: node %d reached twice below %d", domain.ErrLogicViolation, child.NodeID, rootID)
			}
			seen[child.NodeID] = true

			level := domain.LevelUnder(cur.level)
			if err := e.setLevel(ctx, r, child.NodeID, level); err != nil {
				return 0, err
			}
			queue = append(queue, item{child.NodeID, level})
			visited++
		}
	}
	return visited, nil
}

// Delete removes a node with its whole subtree and every attachment, all or
// nothing. The last top-level node cannot be deleted.
func (e *Engine) Delete(ctx context.Context, nodeID int64) error {
	return e.withTx(ctx, func(r repos) error {
		if _, err := r.relations.Find(ctx, nodeID); err != nil {
			return err
		}
		node, err := r.nodes.Find(ctx, nodeID)
		if err != nil {
			return err
		}

		if node.Level == 0 {
			roots, err := r.relations.CountChildren(ctx, domain.RootID)
			if err != nil {
				return err
			}
			if roots == 1 {
				return fmt.Errorf("%w: the only top-level node cannot be deleted", domain.ErrLogicViolation)
			}
		}

		subtree, err := collectSubtree(ctx, r, nodeID)
		if err != nil {
			return err
		}

		// Pre-order reversed puts every descendant before its ancestors
		for i := len(subtree) - 1; i >= 0; i-- {
			if err := deleteOne(ctx, r, subtree[i]); err != nil {
				return err
			}
		}

		e.observeCascade("delete", len(subtree))
		return nil
	})
}

// collectSubtree lists rootID and its descendants in depth-first pre-order
func collectSubtree(ctx context.Context, r repos, rootID int64) ([]int64, error) {
	var order []int64
	stack := []int64{rootID}
	seen := map[int64]bool{rootID: true}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, id)

		children, err := r.relations.FindChildren(ctx, id)
		if err != nil {
			return nil, err
		}
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i].NodeID
			if seen[child] {
				return nil, fmt.Errorf("%w: node %d reached twice below %d", domain.ErrLogicViolation, child, rootID)
			}
			seen[child] = true
			stack = append(stack, child)
		}
	}
	return order, nil
}

// deleteOne removes a single node's rows: relation, bookmark, attachments of
// a rich node, then the node itself.
func deleteOne(ctx context.Context, r repos, nodeID int64) error {
	node, err := r.nodes.Find(ctx, nodeID)
	if err != nil {
		return err
	}

	if err := r.relations.Delete(ctx, nodeID); err != nil {
		return err
	}

	bm, ok, err := r.bookmarks.Find(ctx, nodeID)
	if err != nil {
		return err
	}
	if ok {
		if err := r.bookmarks.Delete(ctx, bm); err != nil {
			return err
		}
	}

	if node.IsRich {
		images, err := r.images.FindAll(ctx, nodeID)
		if err != nil {
			return err
		}
		for _, img := range images {
			if err := r.images.Delete(ctx, img); err != nil {
				return err
			}
		}

		codeboxes, err := r.codeboxes.FindAll(ctx, nodeID)
		if err != nil {
			return err
		}
		for _, cb := range codeboxes {
			if err := r.codeboxes.Delete(ctx, cb); err != nil {
				return err
			}
		}

		grids, err := r.grids.FindAll(ctx, nodeID)
		if err != nil {
			return err
		}
		for _, g := range grids {
			if err := r.grids.Delete(ctx, g); err != nil {
				return err
			}
		}
	}

	return r.nodes.Delete(ctx, nodeID)
}

// FindNode returns a single node
func (e *Engine) FindNode(ctx context.Context, id int64) (*domain.Node, error) {
	return sqlite.NewNodeRepository(e.db).Find(ctx, id)
}

// BuildTree loads every node and relation and assembles the hierarchy
func (e *Engine) BuildTree(ctx context.Context) (*domain.Tree, error) {
	tree, _, err := e.loadTree(ctx)
	return tree, err
}

func (e *Engine) loadTree(ctx context.Context) (*domain.Tree, []domain.Node, error) {
	r := newRepos(e.db)

	nodes, err := r.nodes.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	relations, err := r.relations.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	return domain.BuildTree(nodes, relations), nodes, nil
}

// Verify checks the stored tree against its structural invariants. An empty
// result means the store is consistent.
func (e *Engine) Verify(ctx context.Context) ([]domain.Violation, error) {
	tree, nodes, err := e.loadTree(ctx)
	if err != nil {
		return nil, err
	}

	violations := domain.CheckTree(tree, nodes)

	stray, err := sqlite.StrayAttachments(ctx, e.db)
	if err != nil {
		return nil, err
	}
	return append(violations, stray...), nil
}
