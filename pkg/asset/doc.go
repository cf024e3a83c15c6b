// Package asset implements a typed-derivation cache over the lump
// store: a set of named loaders, each producing some typed value from
// a lump's raw bytes, with at-most-one concurrent build per (loader,
// LumpId) pair.
//
// Single-build semantics are implemented with
// golang.org/x/sync/singleflight rather than a hand-rolled per-entry
// build flag: the loader/LumpId pair is the singleflight key, and
// concurrent Load calls for the same key share one in-flight call and
// its result. A failed build is never cached — singleflight already
// gives this for free, since a failed Do call does not populate
// anything callers can hit on a subsequent Load.
package asset
