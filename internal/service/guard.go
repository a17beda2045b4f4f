package service

import (
	"fractalnote/internal/domain"
	"fractalnote/internal/store"
)

// TokenSource reports the current version of a store
type TokenSource interface {
	ModifyTime() (store.Token, error)
}

// Guard rejects mutations built on a stale view of the store
type Guard struct {
	src TokenSource
}

// NewGuard creates a guard over a token source, normally a *store.Handle
func NewGuard(src TokenSource) *Guard {
	return &Guard{src: src}
}

// CurrentToken returns the store's version token
func (g *Guard) CurrentToken() (store.Token, error) {
	return g.src.ModifyTime()
}

// CheckFresh fails with a *domain.ConflictError when client differs from the
// current token. displayName is only resolved on conflict and names the
// contested node in the error.
func (g *Guard) CheckFresh(client store.Token, displayName func() (string, error)) error {
	current, err := g.CurrentToken()
	if err != nil {
		return err
	}
	if client == current {
		return nil
	}

	name, err := displayName()
	if err != nil {
		return err
	}
	return &domain.ConflictError{Title: name}
}
