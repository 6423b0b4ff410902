// Package storage defines persistence contracts for the signing subsystem.
//
// Handlers and the sealing pipeline depend on these interfaces; the SQLite
// package is the only implementation shipped.
package storage
