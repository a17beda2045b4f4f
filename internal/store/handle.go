// Package store owns the backing SQLite file of a note tree: the database
// connection, the version token derived from the file's modification time,
// and the advisory lock that serialises writers across processes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"fractalnote/internal/domain"
	"fractalnote/internal/repository/sqlite"
)

// Options tunes how a store is opened
type Options struct {
	BusyTimeout time.Duration
	LockTimeout time.Duration
	Logger      zerolog.Logger
}

// Handle is an open store
type Handle struct {
	path string
	db   *sql.DB
	opts Options
	log  zerolog.Logger
}

const storeDirPerm = 0o755

// Open opens an existing store file. A missing file is domain.ErrNotFound;
// use Create to make a new one.
func Open(ctx context.Context, path string, opts Options) (*Handle, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NotFoundf("store %s", path)
		}
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}
	return open(ctx, path, opts)
}

// Create opens the store at path, creating the file, its parent directories
// and the schema when needed. It is safe to call on an existing store.
func Create(ctx context.Context, path string, opts Options) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return open(ctx, path, opts)
}

func open(ctx context.Context, path string, opts Options) (*Handle, error) {
	db, err := sqlite.Open(ctx, path, opts.BusyTimeout)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		path: path,
		db:   db,
		opts: opts,
		log:  opts.Logger.With().Str("component", "store").Str("path", path).Logger(),
	}
	h.log.Debug().Msg("store opened")
	return h, nil
}

// Path returns the store file path
func (h *Handle) Path() string {
	return h.path
}

// LockPath returns the sidecar file writers lock on
func (h *Handle) LockPath() string {
	return h.path + lockSuffix
}

// DB returns the underlying database
func (h *Handle) DB() *sql.DB {
	return h.db
}

// ModifyTime returns the current version token of the store
func (h *Handle) ModifyTime() (Token, error) {
	return tokenOf(h.path)
}

func tokenOf(path string) (Token, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat store: %w", err)
	}
	return TokenFromTime(fi.ModTime()), nil
}

// Touch moves the store's modification time strictly forward and returns
// the new token. Callers hold the exclusive lock, so the token observed
// before the bump is the newest any client can have seen.
func (h *Handle) Touch() (Token, error) {
	prev, err := h.ModifyTime()
	if err != nil {
		return 0, err
	}

	next := time.Now()
	if !next.After(prev.Time()) {
		next = prev.Time().Add(time.Millisecond)
	}

	// Filesystems with coarse timestamps may round the first attempt back
	// onto prev; a whole second always survives.
	for _, t := range []time.Time{next, prev.Time().Add(time.Second)} {
		if err := os.Chtimes(h.path, t, t); err != nil {
			return 0, fmt.Errorf("failed to touch store: %w", err)
		}
		cur, err := h.ModifyTime()
		if err != nil {
			return 0, err
		}
		if cur > prev {
			h.log.Debug().Stringer("token", cur).Msg("token bumped")
			return cur, nil
		}
	}
	return 0, fmt.Errorf("store %s: modification time did not advance", h.path)
}

// Lock takes the exclusive store lock, waiting up to the configured timeout
func (h *Handle) Lock(ctx context.Context) (*Lock, error) {
	return acquireLock(ctx, h.LockPath(), unix.LOCK_EX, h.opts.LockTimeout)
}

// RLock takes a shared store lock. Readers hold it so they never observe a
// writer's state between commit and token bump.
func (h *Handle) RLock(ctx context.Context) (*Lock, error) {
	return acquireLock(ctx, h.LockPath(), unix.LOCK_SH, h.opts.LockTimeout)
}

// Close closes the database connection
func (h *Handle) Close() error {
	if err := h.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
