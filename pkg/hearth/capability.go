// Package hearth defines the core data model of the capability runtime:
// permissions, capabilities, lump identifiers, and the sentinel errors
// shared by every subsystem (post office, lump store, asset store,
// connection, wasm host).
package hearth

import "fmt"

// Permissions is a bitset over {SEND, MONITOR, KILL}, matching the wire
// encoding in the remote connection protocol (SEND=1, MONITOR=2, KILL=4).
type Permissions uint8

const (
	PermSend Permissions = 1 << iota
	PermMonitor
	PermKill

	PermNone = Permissions(0)
	PermAll  = PermSend | PermMonitor | PermKill
)

// Has reports whether p contains all bits of other.
func (p Permissions) Has(other Permissions) bool {
	return p&other == other
}

// Subset reports whether p is a subset of other (p ⊆ other).
func (p Permissions) Subset(other Permissions) bool {
	return p&^other == 0
}

// Intersect returns p ∩ other.
func (p Permissions) Intersect(other Permissions) Permissions {
	return p & other
}

func (p Permissions) String() string {
	if p == PermNone {
		return "none"
	}
	s := ""
	if p.Has(PermSend) {
		s += "S"
	}
	if p.Has(PermMonitor) {
		s += "M"
	}
	if p.Has(PermKill) {
		s += "K"
	}
	return s
}

// RouteID is the process-wide identity of a route within one post office.
// It is never meaningful across two different runtimes; the connection
// layer projects capabilities across a byte stream precisely because a
// RouteID cannot be.
type RouteID uint64

// Capability is an unforgeable reference to a route, paired with a
// permission set. Two capabilities are equal iff their route and
// permissions are equal, which makes Capability directly usable as a Go
// map key for handle deduplication (table.go).
type Capability struct {
	Route RouteID
	Perms Permissions
}

// Demote returns a capability naming the same route with permissions
// restricted to newPerms ∩ c.Perms. Demote never fails; use Table.Demote
// for the fallible, handle-checked form required by P1.
func (c Capability) Demote(newPerms Permissions) Capability {
	return Capability{Route: c.Route, Perms: c.Perms.Intersect(newPerms)}
}

func (c Capability) String() string {
	return fmt.Sprintf("cap(route=%d, perms=%s)", c.Route, c.Perms)
}

// Handle is a small non-negative integer local to one table that refers to
// one capability entry. Handles from different tables must never be
// compared; Handle carries no table identity of its own.
type Handle uint32

// LumpId is the 32-byte BLAKE3 digest of a lump's contents. Two lumps with
// identical contents always have identical ids.
type LumpId [32]byte

func (id LumpId) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 64)
	for i, b := range id {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0x0f]
	}
	return string(buf)
}

// IsZero reports whether id is the zero value (never a valid digest in
// practice, but useful as a sentinel for "no lump").
func (id LumpId) IsZero() bool {
	return id == LumpId{}
}
