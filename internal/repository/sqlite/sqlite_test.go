package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"fractalnote/internal/domain"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestDB creates an in-memory SQLite database with the schema applied
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:", time.Second)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// seedNode inserts a node and its relation in one go
func seedNode(t *testing.T, db DBTX, id, father int64, seq, level int, title string) {
	t.Helper()
	ctx := context.Background()
	n := domain.NewNode(id, title, "", false, level)
	assertNoError(t, NewNodeRepository(db).Insert(ctx, n))
	assertNoError(t, NewRelationRepository(db).Insert(ctx, &domain.Relation{NodeID: id, FatherID: father, Sequence: seq}))
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertErrorIs fails the test unless err matches target
func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, got %v", target, err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullToString(t *testing.T) {
	tests := []struct {
		name     string
		input    sql.NullString
		expected string
	}{
		{"valid string", sql.NullString{String: "hello", Valid: true}, "hello"},
		{"null string", sql.NullString{Valid: false}, ""},
		{"valid empty", sql.NullString{String: "", Valid: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertEqual(t, tt.expected, nullToString(tt.input))
		})
	}
}

func TestUnixTimeRoundTrip(t *testing.T) {
	assertEqual(t, int64(0), timeToUnix(time.Time{}))
	assertEqual(t, true, unixToTime(0).IsZero())

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assertEqual(t, ts, unixToTime(timeToUnix(ts)))
}

func TestBuildUpdate(t *testing.T) {
	query, args, err := buildUpdate("relation", "node_id",
		[]domain.Field{domain.FieldFatherID, domain.FieldSequence},
		func(f domain.Field) (any, error) {
			if f == domain.FieldFatherID {
				return int64(4), nil
			}
			return 2, nil
		}, nil)
	assertNoError(t, err)
	assertEqual(t, "UPDATE relation SET father_id = ?, sequence = ? WHERE node_id = ?", query)
	assertEqual(t, []any{int64(4), 2}, args)
}

func TestBuildUpdateUnknownField(t *testing.T) {
	n := domain.NewNode(1, "a", "", false, 0)
	_, _, err := buildUpdate("node", "id", []domain.Field{domain.FieldSequence},
		func(f domain.Field) (any, error) { return nodeFieldValue(n, f) }, nil)
	if err == nil {
		t.Fatal("expected error for a field the node table does not have")
	}
}

func TestNodeRowToDomain(t *testing.T) {
	row := nodeRow{
		ID:         3,
		Title:      "Groceries",
		Body:       "milk",
		Syntax:     domain.SyntaxPlainText,
		IsRich:     0,
		IsReadOnly: 1,
		Level:      2,
		CreatedAt:  1700000000,
	}

	n := row.toDomain()
	assertEqual(t, int64(3), n.ID)
	assertEqual(t, "Groceries", n.Title)
	assertEqual(t, false, n.IsRich)
	assertEqual(t, true, n.IsReadOnly)
	assertEqual(t, 2, n.Level)
	assertEqual(t, time.Unix(1700000000, 0).UTC(), n.CreatedAt)
	assertEqual(t, true, n.UpdatedAt.IsZero())
}

// ============================================================================
// Node Repository Tests
// ============================================================================

func TestNodeInsertFind(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewNodeRepository(db)

	n := domain.NewNode(1, "Inbox", "first", false, 0)
	assertNoError(t, repo.Insert(ctx, n))

	got, err := repo.Find(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, "Inbox", got.Title)
	assertEqual(t, "first", got.Body)
	assertEqual(t, domain.SyntaxPlainText, got.Syntax)

	ok, err := repo.Exists(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, true, ok)

	_, err = repo.Find(ctx, 99)
	assertErrorIs(t, err, domain.ErrNotFound)
}

func TestNodeInsertInvalid(t *testing.T) {
	db := newTestDB(t)
	err := NewNodeRepository(db).Insert(context.Background(), domain.NewNode(0, "x", "", false, 0))
	assertErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestNodeNextID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewNodeRepository(db)

	id, err := repo.NextID(ctx)
	assertNoError(t, err)
	assertEqual(t, int64(1), id)

	assertNoError(t, repo.Insert(ctx, domain.NewNode(7, "seven", "", false, 0)))
	id, err = repo.NextID(ctx)
	assertNoError(t, err)
	assertEqual(t, int64(8), id)
}

func TestNodeUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewNodeRepository(db)
	assertNoError(t, repo.Insert(ctx, domain.NewNode(1, "old", "body", false, 0)))

	before, err := repo.Find(ctx, 1)
	assertNoError(t, err)
	after := *before
	after.Title = "new"

	changed, err := repo.Update(ctx, before, &after)
	assertNoError(t, err)
	assertEqual(t, []domain.Field{domain.FieldTitle}, changed)

	got, err := repo.Find(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, "new", got.Title)
	assertEqual(t, "body", got.Body)
}

func TestNodeUpdateNoChanges(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewNodeRepository(db)
	assertNoError(t, repo.Insert(ctx, domain.NewNode(1, "same", "", false, 0)))

	n, err := repo.Find(ctx, 1)
	assertNoError(t, err)
	same := *n
	_, err = repo.Update(ctx, n, &same)
	assertErrorIs(t, err, domain.ErrNoChanges)
}

func TestNodeUpdateMissing(t *testing.T) {
	db := newTestDB(t)
	before := domain.NewNode(5, "ghost", "", false, 0)
	after := *before
	after.Title = "still ghost"
	_, err := NewNodeRepository(db).Update(context.Background(), before, &after)
	assertErrorIs(t, err, domain.ErrNotFound)
}

func TestNodeDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewNodeRepository(db)
	assertNoError(t, repo.Insert(ctx, domain.NewNode(1, "a", "", false, 0)))

	assertNoError(t, repo.Delete(ctx, 1))
	assertErrorIs(t, repo.Delete(ctx, 1), domain.ErrNotFound)
}

func TestNodeList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewNodeRepository(db)
	for _, id := range []int64{3, 1, 2} {
		assertNoError(t, repo.Insert(ctx, domain.NewNode(id, "n", "", false, 0)))
	}

	nodes, err := repo.List(ctx)
	assertNoError(t, err)
	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	assertEqual(t, []int64{1, 2, 3}, ids)
}

// ============================================================================
// Relation Repository Tests
// ============================================================================

func TestRelationChildren(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedNode(t, db, 1, 0, 0, 0, "root")
	seedNode(t, db, 2, 1, 2, 1, "b")
	seedNode(t, db, 3, 1, 1, 1, "a")
	seedNode(t, db, 4, 1, 1, 1, "a2")

	repo := NewRelationRepository(db)
	children, err := repo.FindChildren(ctx, 1)
	assertNoError(t, err)

	ids := make([]int64, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.NodeID)
	}
	assertEqual(t, []int64{3, 4, 2}, ids)

	n, err := repo.CountChildren(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, 3, n)

	n, err = repo.CountChildren(ctx, domain.RootID)
	assertNoError(t, err)
	assertEqual(t, 1, n)
}

func TestRelationCalculateLevel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedNode(t, db, 1, 0, 0, 0, "root")
	seedNode(t, db, 2, 1, 0, 1, "child")

	repo := NewRelationRepository(db)
	tests := []struct {
		name   string
		parent int64
		want   int
	}{
		{"virtual root", domain.RootID, 0},
		{"top-level parent", 1, 1},
		{"nested parent", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := repo.CalculateLevel(ctx, tt.parent)
			assertNoError(t, err)
			assertEqual(t, tt.want, level)
		})
	}

	_, err := repo.CalculateLevel(ctx, 42)
	assertErrorIs(t, err, domain.ErrNotFound)
}

func TestRelationUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedNode(t, db, 1, 0, 0, 0, "a")
	seedNode(t, db, 2, 0, 1, 0, "b")

	repo := NewRelationRepository(db)
	before, err := repo.Find(ctx, 2)
	assertNoError(t, err)

	after := *before
	after.FatherID = 1
	changed, err := repo.Update(ctx, before, &after)
	assertNoError(t, err)
	assertEqual(t, []domain.Field{domain.FieldFatherID}, changed)

	got, err := repo.Find(ctx, 2)
	assertNoError(t, err)
	assertEqual(t, int64(1), got.FatherID)
	assertEqual(t, 1, got.Sequence)

	same := *got
	_, err = repo.Update(ctx, got, &same)
	assertErrorIs(t, err, domain.ErrNoChanges)
}

func TestRelationSelfParent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedNode(t, db, 1, 0, 0, 0, "a")

	repo := NewRelationRepository(db)
	before, err := repo.Find(ctx, 1)
	assertNoError(t, err)
	after := *before
	after.FatherID = 1
	_, err = repo.Update(ctx, before, &after)
	assertErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRelationDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedNode(t, db, 1, 0, 0, 0, "a")

	repo := NewRelationRepository(db)
	assertNoError(t, repo.Delete(ctx, 1))
	_, err := repo.Find(ctx, 1)
	assertErrorIs(t, err, domain.ErrNotFound)
	assertErrorIs(t, repo.Delete(ctx, 1), domain.ErrNotFound)
}

func TestRelationRequiresNode(t *testing.T) {
	db := newTestDB(t)
	err := NewRelationRepository(db).Insert(context.Background(), &domain.Relation{NodeID: 9, FatherID: 0})
	if err == nil {
		t.Fatal("expected foreign key failure for a relation without a node")
	}
}

// ============================================================================
// Attachment Repository Tests
// ============================================================================

func TestPositionalAttachments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	nodes := NewNodeRepository(db)
	assertNoError(t, nodes.Insert(ctx, domain.NewNode(1, "rich", "", true, 0)))

	images := NewImageRepository(db)
	assertNoError(t, images.Insert(ctx, &domain.Image{Anchor: domain.Anchor{NodeID: 1, Offset: 10}, PNG: []byte{0x89, 'P'}, Filename: "a.png"}))
	assertNoError(t, images.Insert(ctx, &domain.Image{Anchor: domain.Anchor{NodeID: 1, Offset: 2}, AnchorName: "top"}))

	got, err := images.FindAll(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, 2, len(got))
	assertEqual(t, 2, got[0].Offset)
	assertEqual(t, "top", got[0].AnchorName)
	assertEqual(t, []byte{0x89, 'P'}, got[1].PNG)

	// Deleting one offset leaves its sibling in place
	assertNoError(t, images.Delete(ctx, got[0]))
	got, err = images.FindAll(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, 1, len(got))
	assertEqual(t, 10, got[0].Offset)
	assertErrorIs(t, images.Delete(ctx, domain.Image{Anchor: domain.Anchor{NodeID: 1, Offset: 2}}), domain.ErrNotFound)

	codeboxes := NewCodeboxRepository(db)
	assertNoError(t, codeboxes.Insert(ctx, &domain.Codebox{Anchor: domain.Anchor{NodeID: 1, Offset: 5}, Body: "x := 1", Syntax: "go", Width: 80, Height: 4}))
	cbs, err := codeboxes.FindAll(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, "go", cbs[0].Syntax)
	assertNoError(t, codeboxes.Delete(ctx, cbs[0]))

	grids := NewGridRepository(db)
	assertNoError(t, grids.Insert(ctx, &domain.Grid{Anchor: domain.Anchor{NodeID: 1, Offset: 7, Justification: "left"}, Body: "<table/>", ColMin: 40, ColMax: 400}))
	gs, err := grids.FindAll(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, "left", gs[0].Justification)
	assertEqual(t, 400, gs[0].ColMax)
}

func TestBookmark(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	assertNoError(t, NewNodeRepository(db).Insert(ctx, domain.NewNode(1, "a", "", false, 0)))

	repo := NewBookmarkRepository(db)
	_, ok, err := repo.Find(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, false, ok)

	assertNoError(t, repo.Insert(ctx, &domain.Bookmark{NodeID: 1, Sequence: 3}))
	bm, ok, err := repo.Find(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, true, ok)
	assertEqual(t, 3, bm.Sequence)

	assertNoError(t, repo.Delete(ctx, bm))
	assertErrorIs(t, repo.Delete(ctx, bm), domain.ErrNotFound)
}

func TestStrayAttachments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	nodes := NewNodeRepository(db)
	assertNoError(t, nodes.Insert(ctx, domain.NewNode(1, "plain", "", false, 0)))
	assertNoError(t, nodes.Insert(ctx, domain.NewNode(2, "rich", "", true, 0)))

	assertNoError(t, NewCodeboxRepository(db).Insert(ctx, &domain.Codebox{Anchor: domain.Anchor{NodeID: 1, Offset: 0}}))
	assertNoError(t, NewGridRepository(db).Insert(ctx, &domain.Grid{Anchor: domain.Anchor{NodeID: 2, Offset: 0}}))

	// Rows left behind by a foreign writer that ran without foreign keys
	_, err := db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`)
	assertNoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO image (node_id, "offset") VALUES (9, 1)`)
	assertNoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO bookmark (node_id, sequence) VALUES (8, 0)`)
	assertNoError(t, err)

	stray, err := StrayAttachments(ctx, db)
	assertNoError(t, err)
	assertEqual(t, 3, len(stray))

	byNode := map[int64]domain.Violation{}
	for _, v := range stray {
		assertEqual(t, domain.ViolationAttachment, v.Kind)
		byNode[v.NodeID] = v
	}
	if !strings.Contains(byNode[9].Detail, "missing node") {
		t.Errorf("image detail = %q", byNode[9].Detail)
	}
	if !strings.Contains(byNode[1].Detail, "plain node") {
		t.Errorf("codebox detail = %q", byNode[1].Detail)
	}
	if _, ok := byNode[2]; ok {
		t.Error("grid on a rich node reported as stray")
	}
	if _, ok := byNode[8]; !ok {
		t.Error("dangling bookmark not reported")
	}
}

// ============================================================================
// Transaction Tests
// ============================================================================

func TestRepositoriesInTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	assertNoError(t, err)
	seedNode(t, tx, 1, 0, 0, 0, "pending")
	assertNoError(t, tx.Rollback())

	ok, err := NewNodeRepository(db).Exists(ctx, 1)
	assertNoError(t, err)
	assertEqual(t, false, ok)
}
