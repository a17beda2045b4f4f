// Package repository defines the data access interfaces for note stores.
//
// The engine works against these interfaces; the sqlite subpackage
// implements them on a store file. Every constructor there takes a DBTX so
// the same repository code runs on the database or inside a transaction.
//
// # Diff-based Updates
//
// Update methods take the row as read and the row as wanted, write only the
// changed columns and report which ones changed. Nothing to write is
// domain.ErrNoChanges, which callers treat as a successful no-op.
package repository
