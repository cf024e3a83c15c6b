// Package lump implements a content-addressed byte store: a mapping
// from LumpId (the BLAKE3 digest of a blob's contents) to a shared
// immutable buffer.
//
// A Store is safe for concurrent Add and Get. Two concurrent Add calls
// for identical bytes never double-store: the hash is computed before
// any lock is taken, so the store only needs to deduplicate on an
// already-known key.
//
// An optional persistent backing store (go.etcd.io/bbolt) survives a
// daemon restart. This does not conflict with the runtime's "no
// persistence of live process state" non-goal: lumps are immutable,
// content-addressed blobs, never live process state.
package lump
