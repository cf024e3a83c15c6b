/*
Package postoffice implements the process-wide capability fabric: routes,
tables, mailboxes, and mailbox groups.

# Architecture

	┌──────────────────────── POST OFFICE ─────────────────────────┐
	│                                                                │
	│   routes: map[RouteID]*routeState   (shared, RWMutex)         │
	│                                                                │
	│   ┌─────────────┐        ┌──────────────────────────────┐    │
	│   │    Table     │        │        MailboxGroup          │    │
	│   │ handle→cap   │◄──────►│  table  (1:1, owned jointly)  │    │
	│   │ refcounted   │        │  mailboxes: map[RouteID]*Mbx  │    │
	│   └─────────────┘        │  killed bool; killCh          │    │
	│                           └──────────────┬───────────────┘    │
	│                                          │ owns                │
	│                              ┌───────────▼───────────┐        │
	│                              │        Mailbox         │       │
	│                              │  route *routeState      │      │
	│                              │  queue []Signal (FIFO)  │      │
	│                              │  notify chan struct{}   │      │
	│                              └─────────────────────────┘      │
	└────────────────────────────────────────────────────────────────┘

A route is owned by exactly one mailbox, which is owned by exactly one
mailbox group, which is associated with exactly one table (the table of
the process that owns the group). Killing a group closes every route it
owns atomically and fires every registered monitor exactly once.

# Locking discipline

Each MailboxGroup has a single mutex that guards both its own
killed-flag transition and every mailbox queue it owns. Table.Send locks
the *destination* mailbox's group exactly once for the whole
check-closed/import-caps/enqueue sequence, which is what gives the
"enqueued before kill, never reordered past kill" guarantee without any
lock ever being held across two different groups at once. Route monitor
lists are guarded by a per-route mutex, independent
of any group mutex, so firing a Down signal into an unrelated mailbox
never nests one group's lock inside another's.
*/
package postoffice
