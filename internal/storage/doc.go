// Package storage journals terminal job outcomes for operator visibility.
//
// The journal is an optional, write-only extension: the in-memory job
// collection stays the source of truth and the journal is never read back.
package storage
