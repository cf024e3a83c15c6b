package postoffice

import (
	"context"
	"reflect"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/metrics"
)

// Mailbox is a FIFO signal queue belonging to exactly one MailboxGroup.
// Every mailbox owns exactly one route; closing the mailbox closes that
// route, firing any registered monitors.
type Mailbox struct {
	po    *PostOffice
	group *MailboxGroup
	route *routeState

	queue  []Signal
	notify chan struct{}
}

// newMailbox registers a fresh route and mailbox inside g. Callers must
// hold g.mu.
func newMailbox(po *PostOffice, g *MailboxGroup) *Mailbox {
	mb := &Mailbox{
		po:     po,
		group:  g,
		notify: make(chan struct{}, 1),
	}
	mb.route = po.registerRoute(mb)
	return mb
}

// Export produces a fresh capability whose route targets this mailbox.
func (mb *Mailbox) Export(perms hearth.Permissions) hearth.Capability {
	return hearth.Capability{Route: mb.route.id, Perms: perms}
}

// RouteID returns this mailbox's observable route identity.
func (mb *Mailbox) RouteID() hearth.RouteID {
	return mb.route.id
}

// enqueueLocked appends sig to the queue and wakes one waiter. Callers
// must hold mb.group.mu.
func (mb *Mailbox) enqueueLocked(sig Signal) {
	mb.queue = append(mb.queue, sig)
	metrics.MailboxSignalsDeliveredTotal.Inc()
	metrics.MailboxQueueDepth.Observe(float64(len(mb.queue)))
	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

// deliver is the entry point used by Table.Send: it locks this mailbox's
// group, re-checks liveness, imports the resolved capabilities into the
// group's table, and enqueues — all under one lock, so a concurrent Kill
// can never interleave with it.
func (mb *Mailbox) deliver(data []byte, caps []hearth.Capability) error {
	mb.group.mu.Lock()
	defer mb.group.mu.Unlock()

	if mb.group.killed {
		return hearth.ErrGroupKilled
	}

	handles := make([]hearth.Handle, len(caps))
	for i, c := range caps {
		handles[i] = mb.group.table.Import(c)
	}
	mb.enqueueLocked(Message{Data: data, Caps: handles})
	return nil
}

// destroyLocked closes this mailbox's route, synchronously. Callers must hold
// mb.group.mu; the caller is responsible for calling fireMonitors(mb.route)
// after releasing that lock.
func (mb *Mailbox) destroyLocked() {
	if mb.route.closed.CompareAndSwap(false, true) {
		metrics.RoutesTotal.Dec()
	}
}

// Recv blocks cooperatively until a signal is available, the mailbox's
// group is killed, or ctx is cancelled. The projection callback maps the
// dequeued signal to an owned value while still logically "holding" the
// queue slot (the signal has already been popped by the time projection
// runs, so there is nothing left for a second goroutine to observe).
func (mb *Mailbox) Recv(ctx context.Context, projection func(Signal) (any, error)) (any, error) {
	for {
		if sig, ok := mb.popLocked(); ok {
			return projection(sig)
		}
		if mb.group.isKilled() {
			return nil, hearth.ErrGroupKilled
		}
		select {
		case <-mb.notify:
		case <-mb.group.killCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryRecv is the non-blocking form of Recv: it returns immediately with
// hearth.ErrMailboxDestroyed-free "no signal" semantics via a nil, nil
// result when the queue is empty and the group is alive.
func (mb *Mailbox) TryRecv(projection func(Signal) (any, error)) (any, error) {
	if sig, ok := mb.popLocked(); ok {
		return projection(sig)
	}
	if mb.group.isKilled() {
		return nil, hearth.ErrGroupKilled
	}
	return nil, nil
}

func (mb *Mailbox) popLocked() (Signal, bool) {
	mb.group.mu.Lock()
	defer mb.group.mu.Unlock()
	if len(mb.queue) == 0 {
		return nil, false
	}
	sig := mb.queue[0]
	mb.queue = mb.queue[1:]
	return sig, true
}

func (mb *Mailbox) hasSignalLocked() bool {
	mb.group.mu.Lock()
	defer mb.group.mu.Unlock()
	return len(mb.queue) > 0
}

// Poll waits for the first of several mailboxes to have a signal
// available and returns its index. It never consumes the signal.
func Poll(ctx context.Context, mailboxes []*Mailbox) (int, error) {
	if len(mailboxes) == 0 {
		<-ctx.Done()
		return -1, ctx.Err()
	}

	for {
		for i, mb := range mailboxes {
			if mb.hasSignalLocked() {
				return i, nil
			}
			if mb.group.isKilled() {
				return i, hearth.ErrGroupKilled
			}
		}

		cases := make([]reflect.SelectCase, 0, len(mailboxes)*2+1)
		for _, mb := range mailboxes {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(mb.notify)})
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(mb.group.killCh)})
		}
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

		chosen, _, _ := reflect.Select(cases)
		if chosen == len(cases)-1 {
			return -1, ctx.Err()
		}
		// Loop back and recheck every mailbox: the wakeup only tells us
		// *something* changed, not which mailbox, since multiple
		// mailboxes can be ready by the time we get scheduled.
	}
}
