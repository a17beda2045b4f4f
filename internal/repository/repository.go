package repository

import (
	"context"

	"fractalnote/internal/domain"
)

// NodeRepository persists node rows
type NodeRepository interface {
	Find(ctx context.Context, id int64) (*domain.Node, error)
	Exists(ctx context.Context, id int64) (bool, error)
	NextID(ctx context.Context) (int64, error)
	Insert(ctx context.Context, n *domain.Node) error
	// Update writes the fields that differ between before and after and
	// returns them; an empty diff is domain.ErrNoChanges.
	Update(ctx context.Context, before, after *domain.Node) ([]domain.Field, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.Node, error)
}

// RelationRepository persists the placement of nodes in the tree
type RelationRepository interface {
	Find(ctx context.Context, nodeID int64) (*domain.Relation, error)
	FindChildren(ctx context.Context, parentID int64) ([]domain.Relation, error)
	CountChildren(ctx context.Context, parentID int64) (int, error)
	CalculateLevel(ctx context.Context, parentID int64) (int, error)
	Insert(ctx context.Context, rel *domain.Relation) error
	Update(ctx context.Context, before, after *domain.Relation) ([]domain.Field, error)
	Delete(ctx context.Context, nodeID int64) error
	List(ctx context.Context) ([]domain.Relation, error)
}

// AttachmentRepository persists one kind of positional attachment
type AttachmentRepository[T any] interface {
	FindAll(ctx context.Context, nodeID int64) ([]T, error)
	Insert(ctx context.Context, a *T) error
	Delete(ctx context.Context, a T) error
}

// BookmarkRepository persists the single bookmark a node may carry
type BookmarkRepository interface {
	Find(ctx context.Context, nodeID int64) (domain.Bookmark, bool, error)
	Insert(ctx context.Context, bm *domain.Bookmark) error
	Delete(ctx context.Context, bm domain.Bookmark) error
}
