// Package domain defines the core types of a hierarchical note store.
//
// # Core Types
//
// Node is a note's content: title, body, syntax and the rich text and
// read-only flags. Relation places a node in the tree: its father, its
// position among siblings. Level (depth below the virtual root) is stored
// on the node and must always equal the node's depth.
//
// Image, Codebox, Grid and Bookmark are attachments. The first three are
// positional, keyed by node and character offset; a node has at most one
// bookmark.
//
// # Tree
//
// BuildTree assembles nodes and relations into a Tree ordered by sequence,
// and CheckTree reports the invariants a stored tree breaks.
//
// # Errors
//
// Operations report ErrNotFound, ErrConflict, ErrNoChanges, ErrNotEditable,
// ErrInvalidArgument or ErrLogicViolation; callers match them with
// errors.Is. ConflictError and NotEditableError carry details for the user.
package domain
