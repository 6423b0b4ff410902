// Package signing groups the document finalization and recipient
// authorization subsystem.
//
// Subpackages are layered leaf-first: document types, rate limiting and
// verification tokens, authorization strategies, integrity hashing, the
// certification page, and finally the sealing pipeline that composes them.
package signing
