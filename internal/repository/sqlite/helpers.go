package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fractalnote/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// boolToInt stores booleans the way SQLite expects them
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// unixToTime converts a stored unix timestamp, treating 0 as unset
func unixToTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// timeToUnix converts a timestamp for storage, treating zero as unset
func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// notFound normalizes sql.ErrNoRows into the domain's ErrNotFound
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf(format, args...)
	}
	return err
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to the node table:
// 1. Add field to nodeRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update nodeColumns constant - APPEND to end
// 4. Update toDomain() and nodeInsertArgs()
// 5. If the column is mutable, add it to domain.DiffNode and nodeFieldValue()
// 6. Add the column in Migrate()
//
// CRITICAL: Column order must match between nodeColumns, scanArgs() and
// nodeInsertArgs(). The same pattern applies to relations.

// ============================================================================
// Node Row Scanner
// ============================================================================

// nodeRow holds all columns from a node query for scanning
type nodeRow struct {
	ID         int64
	Title      string
	Body       string
	Syntax     string
	IsRich     int64
	IsReadOnly int64
	Level      int
	CreatedAt  int64
	UpdatedAt  int64
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match nodeColumns order exactly
func (r *nodeRow) scanArgs() []any {
	return []any{
		&r.ID,         // 1
		&r.Title,      // 2
		&r.Body,       // 3
		&r.Syntax,     // 4
		&r.IsRich,     // 5
		&r.IsReadOnly, // 6
		&r.Level,      // 7
		&r.CreatedAt,  // 8
		&r.UpdatedAt,  // 9
	}
}

// toDomain converts the scanned row to a domain.Node
func (r *nodeRow) toDomain() *domain.Node {
	return &domain.Node{
		ID:         r.ID,
		Title:      r.Title,
		Body:       r.Body,
		Syntax:     r.Syntax,
		IsRich:     r.IsRich != 0,
		IsReadOnly: r.IsReadOnly != 0,
		Level:      r.Level,
		CreatedAt:  unixToTime(r.CreatedAt),
		UpdatedAt:  unixToTime(r.UpdatedAt),
	}
}

// nodeColumns returns the SELECT column list for node queries
const nodeColumns = `id, title, body, syntax, is_rich, is_read_only, level, created_at, updated_at`

// nodeInsertArgs prepares arguments for node INSERT in nodeColumns order
func nodeInsertArgs(n *domain.Node) []any {
	return []any{
		n.ID,
		n.Title,
		n.Body,
		n.Syntax,
		boolToInt(n.IsRich),
		boolToInt(n.IsReadOnly),
		n.Level,
		timeToUnix(n.CreatedAt),
		timeToUnix(n.UpdatedAt),
	}
}

// nodeFieldValue returns the column value of a diffable node field
func nodeFieldValue(n *domain.Node, f domain.Field) (any, error) {
	switch f {
	case domain.FieldTitle:
		return n.Title, nil
	case domain.FieldBody:
		return n.Body, nil
	case domain.FieldSyntax:
		return n.Syntax, nil
	case domain.FieldIsRich:
		return boolToInt(n.IsRich), nil
	case domain.FieldIsReadOnly:
		return boolToInt(n.IsReadOnly), nil
	case domain.FieldLevel:
		return n.Level, nil
	}
	return nil, fmt.Errorf("node has no column %q", f)
}

// ============================================================================
// Relation Row Scanner
// ============================================================================

// relationColumns returns the SELECT column list for relation queries
const relationColumns = `node_id, father_id, sequence`

// scanRelation scans one relation row in relationColumns order
func scanRelation(s interface{ Scan(dest ...any) error }) (*domain.Relation, error) {
	var rel domain.Relation
	if err := s.Scan(&rel.NodeID, &rel.FatherID, &rel.Sequence); err != nil {
		return nil, err
	}
	return &rel, nil
}

// relationFieldValue returns the column value of a diffable relation field
func relationFieldValue(r *domain.Relation, f domain.Field) (any, error) {
	switch f {
	case domain.FieldFatherID:
		return r.FatherID, nil
	case domain.FieldSequence:
		return r.Sequence, nil
	}
	return nil, fmt.Errorf("relation has no column %q", f)
}

// ============================================================================
// Partial Update Builder
// ============================================================================

// buildUpdate renders "UPDATE table SET a = ?, b = ? WHERE key = ?" for the
// changed fields only. extra columns are appended verbatim to the SET list.
func buildUpdate(table, key string, fields []domain.Field, value func(domain.Field) (any, error), extra map[string]any) (string, []any, error) {
	sets := make([]string, 0, len(fields)+len(extra))
	args := make([]any, 0, len(fields)+len(extra)+1)

	for _, f := range fields {
		v, err := value(f)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, string(f)+" = ?")
		args = append(args, v)
	}
	for col, v := range extra {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", table, strings.Join(sets, ", "), key)
	return query, args, nil
}
