package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fractalnote/internal/domain"
)

// deleteAtOffset removes one positional attachment by its compound key.
// Deleting by node_id alone would take every sibling row of the same kind.
func deleteAtOffset(ctx context.Context, q DBTX, table string, nodeID int64, offset int) error {
	res, err := q.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE node_id = ? AND "offset" = ?`, nodeID, offset)
	if err != nil {
		return fmt.Errorf("failed to delete %s (%d, %d): %w", table, nodeID, offset, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("%s at node %d offset %d", table, nodeID, offset)
	}
	return nil
}

// ============================================================================
// Image
// ============================================================================

// ImageRepository persists pictures embedded in rich nodes
type ImageRepository struct {
	q DBTX
}

// NewImageRepository binds an image repository to a database or transaction
func NewImageRepository(q DBTX) *ImageRepository {
	return &ImageRepository{q: q}
}

// FindAll returns the images of a node ordered by offset
func (r *ImageRepository) FindAll(ctx context.Context, nodeID int64) ([]domain.Image, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT node_id, "offset", justification, anchor, png, filename, link
		FROM image WHERE node_id = ? ORDER BY "offset"
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images of %d: %w", nodeID, err)
	}
	defer rows.Close()

	var out []domain.Image
	for rows.Next() {
		var (
			img                               domain.Image
			justification, anchor, file, link sql.NullString
		)
		if err := rows.Scan(&img.NodeID, &img.Offset, &justification, &anchor, &img.PNG, &file, &link); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		img.Justification = nullToString(justification)
		img.AnchorName = nullToString(anchor)
		img.Filename = nullToString(file)
		img.Link = nullToString(link)
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating images: %w", err)
	}
	return out, nil
}

// Insert stores an image
func (r *ImageRepository) Insert(ctx context.Context, img *domain.Image) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO image (node_id, "offset", justification, anchor, png, filename, link)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, img.NodeID, img.Offset, stringToNull(img.Justification), stringToNull(img.AnchorName),
		img.PNG, stringToNull(img.Filename), stringToNull(img.Link))
	if err != nil {
		return fmt.Errorf("failed to insert image (%d, %d): %w", img.NodeID, img.Offset, err)
	}
	return nil
}

// Delete removes the image at (node_id, offset)
func (r *ImageRepository) Delete(ctx context.Context, img domain.Image) error {
	return deleteAtOffset(ctx, r.q, "image", img.NodeID, img.Offset)
}

// ============================================================================
// Codebox
// ============================================================================

// CodeboxRepository persists code blocks embedded in rich nodes
type CodeboxRepository struct {
	q DBTX
}

// NewCodeboxRepository binds a codebox repository to a database or transaction
func NewCodeboxRepository(q DBTX) *CodeboxRepository {
	return &CodeboxRepository{q: q}
}

// FindAll returns the codeboxes of a node ordered by offset
func (r *CodeboxRepository) FindAll(ctx context.Context, nodeID int64) ([]domain.Codebox, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT node_id, "offset", justification, body, syntax, width, height
		FROM codebox WHERE node_id = ? ORDER BY "offset"
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query codeboxes of %d: %w", nodeID, err)
	}
	defer rows.Close()

	var out []domain.Codebox
	for rows.Next() {
		var (
			cb            domain.Codebox
			justification sql.NullString
		)
		if err := rows.Scan(&cb.NodeID, &cb.Offset, &justification, &cb.Body, &cb.Syntax, &cb.Width, &cb.Height); err != nil {
			return nil, fmt.Errorf("failed to scan codebox: %w", err)
		}
		cb.Justification = nullToString(justification)
		out = append(out, cb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating codeboxes: %w", err)
	}
	return out, nil
}

// Insert stores a codebox
func (r *CodeboxRepository) Insert(ctx context.Context, cb *domain.Codebox) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO codebox (node_id, "offset", justification, body, syntax, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cb.NodeID, cb.Offset, stringToNull(cb.Justification), cb.Body, cb.Syntax, cb.Width, cb.Height)
	if err != nil {
		return fmt.Errorf("failed to insert codebox (%d, %d): %w", cb.NodeID, cb.Offset, err)
	}
	return nil
}

// Delete removes the codebox at (node_id, offset)
func (r *CodeboxRepository) Delete(ctx context.Context, cb domain.Codebox) error {
	return deleteAtOffset(ctx, r.q, "codebox", cb.NodeID, cb.Offset)
}

// ============================================================================
// Grid
// ============================================================================

// GridRepository persists tables embedded in rich nodes
type GridRepository struct {
	q DBTX
}

// NewGridRepository binds a grid repository to a database or transaction
func NewGridRepository(q DBTX) *GridRepository {
	return &GridRepository{q: q}
}

// FindAll returns the grids of a node ordered by offset
func (r *GridRepository) FindAll(ctx context.Context, nodeID int64) ([]domain.Grid, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT node_id, "offset", justification, body, col_min, col_max
		FROM grid WHERE node_id = ? ORDER BY "offset"
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grids of %d: %w", nodeID, err)
	}
	defer rows.Close()

	var out []domain.Grid
	for rows.Next() {
		var (
			g             domain.Grid
			justification sql.NullString
		)
		if err := rows.Scan(&g.NodeID, &g.Offset, &justification, &g.Body, &g.ColMin, &g.ColMax); err != nil {
			return nil, fmt.Errorf("failed to scan grid: %w", err)
		}
		g.Justification = nullToString(justification)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grids: %w", err)
	}
	return out, nil
}

// Insert stores a grid
func (r *GridRepository) Insert(ctx context.Context, g *domain.Grid) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO grid (node_id, "offset", justification, body, col_min, col_max)
		VALUES (?, ?, ?, ?, ?, ?)
	`, g.NodeID, g.Offset, stringToNull(g.Justification), g.Body, g.ColMin, g.ColMax)
	if err != nil {
		return fmt.Errorf("failed to insert grid (%d, %d): %w", g.NodeID, g.Offset, err)
	}
	return nil
}

// Delete removes the grid at (node_id, offset)
func (r *GridRepository) Delete(ctx context.Context, g domain.Grid) error {
	return deleteAtOffset(ctx, r.q, "grid", g.NodeID, g.Offset)
}

// ============================================================================
// Bookmark
// ============================================================================

// BookmarkRepository persists node bookmarks, at most one per node
type BookmarkRepository struct {
	q DBTX
}

// NewBookmarkRepository binds a bookmark repository to a database or transaction
func NewBookmarkRepository(q DBTX) *BookmarkRepository {
	return &BookmarkRepository{q: q}
}

// Find returns the bookmark of a node; ok is false when there is none
func (r *BookmarkRepository) Find(ctx context.Context, nodeID int64) (bm domain.Bookmark, ok bool, err error) {
	err = r.q.QueryRowContext(ctx, `SELECT node_id, sequence FROM bookmark WHERE node_id = ?`, nodeID).
		Scan(&bm.NodeID, &bm.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bookmark{}, false, nil
	}
	if err != nil {
		return domain.Bookmark{}, false, fmt.Errorf("failed to query bookmark of %d: %w", nodeID, err)
	}
	return bm, true, nil
}

// Insert stores a bookmark
func (r *BookmarkRepository) Insert(ctx context.Context, bm *domain.Bookmark) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO bookmark (node_id, sequence) VALUES (?, ?)`, bm.NodeID, bm.Sequence)
	if err != nil {
		return fmt.Errorf("failed to insert bookmark of %d: %w", bm.NodeID, err)
	}
	return nil
}

// Delete removes the bookmark of a node
func (r *BookmarkRepository) Delete(ctx context.Context, bm domain.Bookmark) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM bookmark WHERE node_id = ?`, bm.NodeID)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark of %d: %w", bm.NodeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("bookmark of node %d", bm.NodeID)
	}
	return nil
}

// ============================================================================
// Audit
// ============================================================================

// StrayAttachments lists attachment rows whose node is gone, and positional
// rows attached to a node without the rich-text flag.
func StrayAttachments(ctx context.Context, q DBTX) ([]domain.Violation, error) {
	var out []domain.Violation

	for _, kind := range domain.PositionalKinds {
		rows, err := q.QueryContext(ctx, `
			SELECT a.node_id, a."offset", n.id IS NULL
			FROM `+string(kind)+` a LEFT JOIN node n ON n.id = a.node_id
			WHERE n.id IS NULL OR n.is_rich = 0
			ORDER BY a.node_id, a."offset"
		`)
		if err != nil {
			return nil, fmt.Errorf("failed to audit %s: %w", kind, err)
		}
		for rows.Next() {
			var (
				nodeID  int64
				offset  int
				missing bool
			)
			if err := rows.Scan(&nodeID, &offset, &missing); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
			}
			detail := fmt.Sprintf("%s at offset %d on a plain node", kind, offset)
			if missing {
				detail = fmt.Sprintf("%s at offset %d references a missing node", kind, offset)
			}
			out = append(out, domain.Violation{Kind: domain.ViolationAttachment, NodeID: nodeID, Detail: detail})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating %s: %w", kind, err)
		}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT b.node_id FROM bookmark b LEFT JOIN node n ON n.id = b.node_id
		WHERE n.id IS NULL ORDER BY b.node_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to audit bookmarks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var nodeID int64
		if err := rows.Scan(&nodeID); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		out = append(out, domain.Violation{Kind: domain.ViolationAttachment, NodeID: nodeID, Detail: "bookmark references a missing node"})
	}
	return out, rows.Err()
}
