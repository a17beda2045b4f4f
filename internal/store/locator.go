package store

import (
	"context"
	"path/filepath"
	"strings"

	"fractalnote/internal/domain"
)

// Locator resolves logical store paths, as clients name them, into store
// files under a root directory.
type Locator struct {
	Root    string
	Options Options
}

// NewLocator creates a locator rooted at root
func NewLocator(root string, opts Options) *Locator {
	return &Locator{Root: root, Options: opts}
}

// Resolve maps a logical path to a file under Root. Paths that are absolute
// or climb out of Root are rejected.
func (l *Locator) Resolve(logical string) (string, error) {
	logical = strings.TrimSpace(logical)
	if logical == "" {
		return "", domain.InvalidArgumentf("empty store path")
	}

	clean := filepath.Clean(filepath.FromSlash(logical))
	if !filepath.IsLocal(clean) {
		return "", domain.InvalidArgumentf("store path %q escapes the store root", logical)
	}
	return filepath.Join(l.Root, clean), nil
}

// Open opens the existing store at a logical path
func (l *Locator) Open(ctx context.Context, logical string) (*Handle, error) {
	path, err := l.Resolve(logical)
	if err != nil {
		return nil, err
	}
	return Open(ctx, path, l.Options)
}

// Create opens the store at a logical path, creating it if needed
func (l *Locator) Create(ctx context.Context, logical string) (*Handle, error) {
	path, err := l.Resolve(logical)
	if err != nil {
		return nil, err
	}
	return Create(ctx, path, l.Options)
}
