// Package service implements the note tree operations on top of a store.
//
// # Layers
//
// Engine applies one mutation per transaction: Create, UpdateContent,
// UpdateReparent and Delete, plus the read paths FindNode, BuildTree and
// Verify. It owns the cascades (level recompute on reparent, subtree removal
// on delete) and walks subtrees with explicit work-lists.
//
// Guard compares a client's version token with the store's current token and
// turns a mismatch into a *domain.ConflictError naming the contested node.
//
// Notes is what callers use. A mutation takes the exclusive store lock,
// passes the guard, runs in the engine, bumps the token and releases the
// lock; the new token is returned in a Result for the client's next request.
//
// # Event System
//
// Notes publishes node_created, node_updated, node_moved and node_deleted on
// an EventBus after each successful mutation, and token_changed while
// watching the store for writes from other processes.
package service
