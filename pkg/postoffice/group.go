package postoffice

import (
	"sync"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/metrics"
)

// MailboxGroup is the lifetime scope of one process's mailboxes. Killing
// the group closes every mailbox it owns atomically; subsequent receives
// on any of them return ErrGroupKilled.
type MailboxGroup struct {
	po    *PostOffice
	id    uint64
	table *Table

	mu        sync.Mutex
	mailboxes map[hearth.RouteID]*Mailbox
	killed    bool
	killCh    chan struct{}
}

// NewGroup creates a mailbox group sharing table, which must belong to
// the same post office.
func (po *PostOffice) NewGroup(table *Table) *MailboxGroup {
	metrics.ProcessesTotal.Inc()
	return &MailboxGroup{
		po:        po,
		id:        po.nextGroup.Add(1),
		table:     table,
		mailboxes: make(map[hearth.RouteID]*Mailbox),
		killCh:    make(chan struct{}),
	}
}

// ID returns the group's runtime-local identity.
func (g *MailboxGroup) ID() uint64 { return g.id }

// Table returns the table shared by every process using this group.
func (g *MailboxGroup) Table() *Table { return g.table }

// NewMailbox creates a fresh mailbox owned by this group.
func (g *MailboxGroup) NewMailbox() *Mailbox {
	g.mu.Lock()
	defer g.mu.Unlock()

	mb := newMailbox(g.po, g)
	g.mailboxes[mb.route.id] = mb
	return mb
}

// DestroyMailbox closes a single mailbox's route without killing the rest
// of the group, firing any monitors registered against it.
func (g *MailboxGroup) DestroyMailbox(mb *Mailbox) error {
	g.mu.Lock()
	if _, ok := g.mailboxes[mb.route.id]; !ok {
		g.mu.Unlock()
		return hearth.ErrMailboxDestroyed
	}
	delete(g.mailboxes, mb.route.id)
	mb.destroyLocked()
	g.mu.Unlock()

	fireMonitors(mb.route)
	return nil
}

func (g *MailboxGroup) isKilled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killed
}

// IsKilled reports whether the group has been killed, for callers
// outside this package that need to observe liveness without holding a
// capability into the group (e.g. the wasm host's epoch ticker).
func (g *MailboxGroup) IsKilled() bool {
	return g.isKilled()
}

// Kill closes every mailbox in the group atomically and notifies every
// monitor registered against any of their routes exactly once.
func (g *MailboxGroup) Kill() {
	g.mu.Lock()
	if g.killed {
		g.mu.Unlock()
		return
	}
	g.killed = true
	close(g.killCh)
	metrics.ProcessesTotal.Dec()
	metrics.ProcessesKilledTotal.Inc()
	mailboxes := make([]*Mailbox, 0, len(g.mailboxes))
	for _, mb := range g.mailboxes {
		mb.destroyLocked()
		mailboxes = append(mailboxes, mb)
	}
	g.mu.Unlock()

	for _, mb := range mailboxes {
		fireMonitors(mb.route)
	}
}
