package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"fractalnote/internal/domain"
)

// RelationRepository persists the parent and sibling order of nodes
type RelationRepository struct {
	q DBTX
}

// NewRelationRepository binds a relation repository to a database or transaction
func NewRelationRepository(q DBTX) *RelationRepository {
	return &RelationRepository{q: q}
}

// Find retrieves the relation of a node, returning domain.ErrNotFound when absent
func (r *RelationRepository) Find(ctx context.Context, nodeID int64) (*domain.Relation, error) {
	rel, err := scanRelation(r.q.QueryRowContext(ctx,
		`SELECT `+relationColumns+` FROM relation WHERE node_id = ?`, nodeID))
	if err != nil {
		return nil, notFound(err, "relation of node %d", nodeID)
	}
	return rel, nil
}

// FindChildren returns the direct children of parentID ordered by sequence.
// parentID 0 selects the top-level nodes.
func (r *RelationRepository) FindChildren(ctx context.Context, parentID int64) ([]domain.Relation, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+relationColumns+` FROM relation
		WHERE father_id = ?
		ORDER BY sequence, node_id
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query children of %d: %w", parentID, err)
	}
	return collectRelations(rows)
}

// CountChildren returns the number of direct children of parentID
func (r *RelationRepository) CountChildren(ctx context.Context, parentID int64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM relation WHERE father_id = ?`, parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count children of %d: %w", parentID, err)
	}
	return n, nil
}

// CalculateLevel returns the level a new child of parentID must carry:
// 0 under the virtual root, otherwise the parent node's level plus one.
func (r *RelationRepository) CalculateLevel(ctx context.Context, parentID int64) (int, error) {
	if parentID == domain.RootID {
		return 0, nil
	}

	var level int
	err := r.q.QueryRowContext(ctx, `
		SELECT n.level FROM relation r
		JOIN node n ON n.id = r.node_id
		WHERE r.node_id = ?
	`, parentID).Scan(&level)
	if err != nil {
		return 0, notFound(err, "parent node %d", parentID)
	}
	return domain.LevelUnder(level), nil
}

// Insert stores a new relation
func (r *RelationRepository) Insert(ctx context.Context, rel *domain.Relation) error {
	if err := rel.Validate(); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO relation (`+relationColumns+`) VALUES (?, ?, ?)
	`, rel.NodeID, rel.FatherID, rel.Sequence)
	if err != nil {
		return fmt.Errorf("failed to insert relation of node %d: %w", rel.NodeID, err)
	}
	return nil
}

// Update writes the fields that differ between before and after. An empty
// diff returns domain.ErrNoChanges and touches nothing.
func (r *RelationRepository) Update(ctx context.Context, before, after *domain.Relation) ([]domain.Field, error) {
	changed := domain.DiffRelation(*before, *after)
	if len(changed) == 0 {
		return nil, fmt.Errorf("relation of node %d: %w", after.NodeID, domain.ErrNoChanges)
	}
	if err := after.Validate(); err != nil {
		return nil, err
	}

	query, args, err := buildUpdate("relation", "node_id", changed,
		func(f domain.Field) (any, error) { return relationFieldValue(after, f) },
		nil,
	)
	if err != nil {
		return nil, err
	}

	res, err := r.q.ExecContext(ctx, query, append(args, after.NodeID)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update relation of node %d: %w", after.NodeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.NotFoundf("relation of node %d", after.NodeID)
	}
	return changed, nil
}

// Delete removes the relation row of a node
func (r *RelationRepository) Delete(ctx context.Context, nodeID int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM relation WHERE node_id = ?`, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete relation of node %d: %w", nodeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("relation of node %d", nodeID)
	}
	return nil
}

// List returns every relation ordered by parent then sequence
func (r *RelationRepository) List(ctx context.Context) ([]domain.Relation, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+relationColumns+` FROM relation
		ORDER BY father_id, sequence, node_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	return collectRelations(rows)
}

func collectRelations(rows *sql.Rows) ([]domain.Relation, error) {
	defer rows.Close()

	var out []domain.Relation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		out = append(out, *rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return out, nil
}
