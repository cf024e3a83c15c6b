package postoffice

import (
	"fmt"
	"sync"

	"github.com/cuemby/hearthd/pkg/hearth"
)

// tableEntry is one row of a Table: a capability and the number of
// outstanding references to its handle.
type tableEntry struct {
	cap  hearth.Capability
	refs int
}

// Table is a per-process mapping from handle to (capability, refcount).
// A table belongs to exactly one post office; dropping it frees every
// capability it held (Close).
type Table struct {
	po *PostOffice

	mu      sync.Mutex
	entries map[hearth.Handle]*tableEntry
	byCap   map[hearth.Capability]hearth.Handle
	next    hearth.Handle
}

// NewTable creates a table bound to po.
func (po *PostOffice) NewTable() *Table {
	return &Table{
		po:      po,
		entries: make(map[hearth.Handle]*tableEntry),
		byCap:   make(map[hearth.Capability]hearth.Handle),
	}
}

func (t *Table) lock()   { t.mu.Lock() }
func (t *Table) unlock() { t.mu.Unlock() }

// Import inserts cap into the table, or reuses an existing handle for an
// equal capability, incrementing its refcount.
func (t *Table) Import(cap hearth.Capability) hearth.Handle {
	t.lock()
	defer t.unlock()
	return t.importLocked(cap)
}

func (t *Table) importLocked(cap hearth.Capability) hearth.Handle {
	if h, ok := t.byCap[cap]; ok {
		t.entries[h].refs++
		return h
	}
	h := t.next
	t.next++
	t.entries[h] = &tableEntry{cap: cap, refs: 1}
	t.byCap[cap] = h
	return h
}

// IncRef adds one reference to h.
func (t *Table) IncRef(h hearth.Handle) error {
	t.lock()
	defer t.unlock()
	e, ok := t.entries[h]
	if !ok {
		return fmt.Errorf("table inc_ref handle %d: %w", h, hearth.ErrInvalidHandle)
	}
	e.refs++
	return nil
}

// DecRef removes one reference from h, freeing the entry when the count
// reaches zero.
func (t *Table) DecRef(h hearth.Handle) error {
	t.lock()
	defer t.unlock()
	e, ok := t.entries[h]
	if !ok {
		return fmt.Errorf("table dec_ref handle %d: %w", h, hearth.ErrInvalidHandle)
	}
	e.refs--
	if e.refs < 0 {
		return fmt.Errorf("table dec_ref handle %d: %w", h, hearth.ErrRefcountUnderflow)
	}
	if e.refs == 0 {
		delete(t.entries, h)
		delete(t.byCap, e.cap)
	}
	return nil
}

// GetPermissions returns the permission set of the capability named by h.
func (t *Table) GetPermissions(h hearth.Handle) (hearth.Permissions, error) {
	t.lock()
	defer t.unlock()
	e, ok := t.entries[h]
	if !ok {
		return 0, fmt.Errorf("table get_permissions handle %d: %w", h, hearth.ErrInvalidHandle)
	}
	return e.cap.Perms, nil
}

// Capability returns the full capability value named by h.
func (t *Table) Capability(h hearth.Handle) (hearth.Capability, error) {
	t.lock()
	defer t.unlock()
	e, ok := t.entries[h]
	if !ok {
		return hearth.Capability{}, fmt.Errorf("table capability handle %d: %w", h, hearth.ErrInvalidHandle)
	}
	return e.cap, nil
}

// Demote creates a new handle naming the same route as h, but with
// permissions restricted to newPerms. Fails unless newPerms ⊆ the
// original permissions.
func (t *Table) Demote(h hearth.Handle, newPerms hearth.Permissions) (hearth.Handle, error) {
	t.lock()
	defer t.unlock()
	e, ok := t.entries[h]
	if !ok {
		return 0, fmt.Errorf("table demote handle %d: %w", h, hearth.ErrInvalidHandle)
	}
	if !newPerms.Subset(e.cap.Perms) {
		return 0, fmt.Errorf("table demote handle %d to %s: %w", h, newPerms, hearth.ErrPermissionEscalate)
	}
	demoted := hearth.Capability{Route: e.cap.Route, Perms: e.cap.Perms.Intersect(newPerms)}
	return t.importLocked(demoted), nil
}

// Send enqueues a Message signal carrying data and capHandles into the
// mailbox named by h's route. Fails if h lacks SEND. The destination
// capabilities are imported into the destination table atomically with
// enqueue, which is what makes the operation indivisible with respect to
// a concurrent kill of the destination group.
func (t *Table) Send(h hearth.Handle, data []byte, capHandles []hearth.Handle) error {
	t.lock()
	e, ok := t.entries[h]
	if !ok {
		t.unlock()
		return fmt.Errorf("table send handle %d: %w", h, hearth.ErrInvalidHandle)
	}
	if !e.cap.Perms.Has(hearth.PermSend) {
		t.unlock()
		return fmt.Errorf("table send handle %d: %w", h, hearth.ErrPermissionDenied)
	}
	resolved := make([]hearth.Capability, len(capHandles))
	for i, ch := range capHandles {
		ce, ok := t.entries[ch]
		if !ok {
			t.unlock()
			return fmt.Errorf("table send handle %d: attached cap handle %d: %w", h, ch, hearth.ErrInvalidHandle)
		}
		resolved[i] = ce.cap
	}
	route := e.cap.Route
	t.unlock()

	rs := t.po.getRoute(route)
	if rs == nil {
		return fmt.Errorf("table send handle %d: %w", h, hearth.ErrRouteClosed)
	}
	return rs.mailbox.deliver(data, resolved)
}

// Kill closes the destination route's entire mailbox group. Fails if h
// lacks KILL.
func (t *Table) Kill(h hearth.Handle) error {
	t.lock()
	e, ok := t.entries[h]
	t.unlock()
	if !ok {
		return fmt.Errorf("table kill handle %d: %w", h, hearth.ErrInvalidHandle)
	}
	if !e.cap.Perms.Has(hearth.PermKill) {
		return fmt.Errorf("table kill handle %d: %w", h, hearth.ErrPermissionDenied)
	}
	rs := t.po.getRoute(e.cap.Route)
	if rs == nil {
		return fmt.Errorf("table kill handle %d: %w", h, hearth.ErrRouteClosed)
	}
	rs.mailbox.group.Kill()
	return nil
}

// Monitor registers mb as an observer of the route named by h. Fails if h
// lacks MONITOR.
func (t *Table) Monitor(h hearth.Handle, mb *Mailbox) error {
	t.lock()
	e, ok := t.entries[h]
	t.unlock()
	if !ok {
		return fmt.Errorf("table monitor handle %d: %w", h, hearth.ErrInvalidHandle)
	}
	if !e.cap.Perms.Has(hearth.PermMonitor) {
		return fmt.Errorf("table monitor handle %d: %w", h, hearth.ErrPermissionDenied)
	}
	return t.po.monitor(e.cap, mb)
}

// Close frees every capability this table holds. Called when the owning
// process is torn down.
func (t *Table) Close() {
	t.lock()
	defer t.unlock()
	t.entries = make(map[hearth.Handle]*tableEntry)
	t.byCap = make(map[hearth.Capability]hearth.Handle)
}

// Len reports the number of live handles, for tests and metrics.
func (t *Table) Len() int {
	t.lock()
	defer t.unlock()
	return len(t.entries)
}
