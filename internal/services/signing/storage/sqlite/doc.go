// Package sqlite provides SQLite-backed signing persistence.
//
// One database file holds documents, verification state, the audit log, the
// worker outbox, and the seal step journal so that a seal commit and its
// journal entry share a transaction.
package sqlite
