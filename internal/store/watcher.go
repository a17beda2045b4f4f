package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces the burst of events one commit produces
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes of a store's version token made by any process
type Watcher struct {
	path     string
	onChange func(Token)
	debounce time.Duration
	log      zerolog.Logger
}

// NewWatcher creates a watcher for the store file at path
func NewWatcher(path string, onChange func(Token)) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: DefaultDebounce,
		log:      zerolog.Nop(),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// WithLogger sets the logger
func (w *Watcher) WithLogger(l zerolog.Logger) *Watcher {
	w.log = l.With().Str("component", "watcher").Str("path", w.path).Logger()
	return w
}

// Watch blocks until ctx is cancelled, calling onChange once per settled
// token change. Events that leave the token as it was are dropped.
func (w *Watcher) Watch(ctx context.Context) error {
	last, err := tokenOf(w.path)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory so replacing the file does not end the watch
	filename := filepath.Base(w.path)
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.log.Info().Stringer("token", last).Msg("watching store")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			cur, err := tokenOf(w.path)
			if err != nil {
				w.log.Warn().Err(err).Msg("store unreadable")
				continue
			}
			if cur == last {
				continue
			}
			w.log.Debug().Stringer("from", last).Stringer("to", cur).Msg("token changed")
			last = cur
			w.onChange(cur)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
