package postoffice

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/metrics"
)

// PostOffice is the process-wide fabric that owns every route. Tables and
// mailbox groups hold a shared reference to it so their lifetimes can
// exceed any single process.
type PostOffice struct {
	mu     sync.RWMutex
	routes map[hearth.RouteID]*routeState

	nextRoute atomic.Uint64
	nextGroup atomic.Uint64
}

// New constructs an empty post office.
func New() *PostOffice {
	return &PostOffice{
		routes: make(map[hearth.RouteID]*routeState),
	}
}

// routeState is the live, internal state behind one Route. Capabilities
// name a routeState by RouteID only; they never hold a pointer to it
// directly, which is what lets a route outlive every capability that
// names it.
type routeState struct {
	id      hearth.RouteID
	mailbox *Mailbox

	closed atomic.Bool

	mu       sync.Mutex
	monitors []monitorEntry
}

type monitorEntry struct {
	mailbox *Mailbox
	subject hearth.Capability
}

func (po *PostOffice) registerRoute(mb *Mailbox) *routeState {
	id := hearth.RouteID(po.nextRoute.Add(1))
	rs := &routeState{id: id, mailbox: mb}
	po.mu.Lock()
	po.routes[id] = rs
	po.mu.Unlock()
	metrics.RoutesTotal.Inc()
	return rs
}

func (po *PostOffice) getRoute(id hearth.RouteID) *routeState {
	po.mu.RLock()
	defer po.mu.RUnlock()
	return po.routes[id]
}

// RouteClosed reports whether the route named by id is closed, or true if
// the route never existed (a dangling RouteID behaves as already-closed).
func (po *PostOffice) RouteClosed(id hearth.RouteID) bool {
	rs := po.getRoute(id)
	if rs == nil {
		return true
	}
	return rs.closed.Load()
}

// monitor registers observer as a watcher of the route named by subject's
// Route. If the route is already closed, the Down signal is enqueued
// synchronously before monitor returns.
func (po *PostOffice) monitor(subject hearth.Capability, observer *Mailbox) error {
	rs := po.getRoute(subject.Route)
	down := Down{Subject: subject.Demote(hearth.PermNone)}

	if rs == nil {
		enqueueDown(observer, down)
		return nil
	}

	rs.mu.Lock()
	if rs.closed.Load() {
		rs.mu.Unlock()
		enqueueDown(observer, down)
		return nil
	}
	rs.monitors = append(rs.monitors, monitorEntry{mailbox: observer, subject: subject})
	rs.mu.Unlock()
	return nil
}

// enqueueDown best-effort delivers a Down signal into mb, silently
// dropping it if mb's group has already been killed — nothing can
// observe a signal in a dead mailbox, and the monitor relationship itself
// was about death, which has already been communicated by the kill.
func enqueueDown(mb *Mailbox, d Down) {
	mb.group.mu.Lock()
	defer mb.group.mu.Unlock()
	if mb.group.killed {
		return
	}
	mb.enqueueLocked(d)
}

// fireMonitors drains and notifies every monitor registered against rs.
// Called after a route has been marked closed; never called while any
// group mutex is held, so it is free to take the unrelated locks of
// whichever groups own the monitoring mailboxes.
func fireMonitors(rs *routeState) {
	rs.mu.Lock()
	monitors := rs.monitors
	rs.monitors = nil
	rs.mu.Unlock()

	for _, m := range monitors {
		enqueueDown(m.mailbox, Down{Subject: m.subject.Demote(hearth.PermNone)})
	}
}

var poLog = log.WithComponent("post-office")
