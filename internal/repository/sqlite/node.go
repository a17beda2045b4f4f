package sqlite

import (
	"context"
	"fmt"
	"time"

	"fractalnote/internal/domain"
)

// NodeRepository persists note content entities
type NodeRepository struct {
	q DBTX
}

// NewNodeRepository binds a node repository to a database or transaction
func NewNodeRepository(q DBTX) *NodeRepository {
	return &NodeRepository{q: q}
}

// Find retrieves a node by ID, returning domain.ErrNotFound when absent
func (r *NodeRepository) Find(ctx context.Context, id int64) (*domain.Node, error) {
	var row nodeRow
	err := r.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM node WHERE id = ?`, id).
		Scan(row.scanArgs()...)
	if err != nil {
		return nil, notFound(err, "node %d", id)
	}
	return row.toDomain(), nil
}

// Exists reports whether a node with the given ID is stored
func (r *NodeRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM node WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query node: %w", err)
	}
	return n > 0, nil
}

// NextID returns the previous maximum id plus one. It must run in the same
// transaction as the insert that consumes it.
func (r *NodeRepository) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM node`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to compute next node id: %w", err)
	}
	return id, nil
}

// Insert stores a new node
func (r *NodeRepository) Insert(ctx context.Context, n *domain.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO node (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nodeInsertArgs(n)...)
	if err != nil {
		return fmt.Errorf("failed to insert node %d: %w", n.ID, err)
	}
	return nil
}

// Update writes the fields that differ between before and after. An empty
// diff returns domain.ErrNoChanges and touches nothing.
func (r *NodeRepository) Update(ctx context.Context, before, after *domain.Node) ([]domain.Field, error) {
	changed := domain.DiffNode(*before, *after)
	if len(changed) == 0 {
		return nil, fmt.Errorf("node %d: %w", after.ID, domain.ErrNoChanges)
	}
	if err := after.Validate(); err != nil {
		return nil, err
	}

	after.UpdatedAt = time.Now().UTC()
	query, args, err := buildUpdate("node", "id", changed,
		func(f domain.Field) (any, error) { return nodeFieldValue(after, f) },
		map[string]any{"updated_at": timeToUnix(after.UpdatedAt)},
	)
	if err != nil {
		return nil, err
	}

	res, err := r.q.ExecContext(ctx, query, append(args, after.ID)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update node %d: %w", after.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.NotFoundf("node %d", after.ID)
	}
	return changed, nil
}

// Delete removes a node row
func (r *NodeRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM node WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("node %d", id)
	}
	return nil
}

// List returns every node ordered by id
func (r *NodeRepository) List(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM node ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		var row nodeRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, *row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}
