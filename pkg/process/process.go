// Package process implements process identity and the process factory:
// binding a table, a mailbox group, and an always-present parent
// mailbox behind a PID.
package process

import (
	"sync/atomic"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/postoffice"
)

// Metadata is optional, guest-populated process information, set before
// the process begins running.
type Metadata struct {
	Name        string
	Description string
	Authors     []string
	Repository  string
	Homepage    string
	License     string
}

// Info is the immutable identity of a process within one runtime.
type Info struct {
	Pid      uint32
	Metadata Metadata
}

// ParentHandle is the well-known table handle of a guest's parent
// mailbox. Destroying it is always an error.
const ParentHandle = 0

// Process binds a table, process info, a mailbox group, and an
// always-present parent mailbox. The parent mailbox is created inside
// the group at spawn, is never destroyed, and is imported into the
// process's own table at handle ParentHandle.
type Process struct {
	Table  *postoffice.Table
	Info   Info
	Group  *postoffice.MailboxGroup
	Parent *postoffice.Mailbox
}

// Kill tears down the process's group, cascading down signals to every
// monitor registered against any of its routes, and frees the table.
func (p *Process) Kill() {
	p.Group.Kill()
	p.Table.Close()
}

// Factory generates monotonically increasing pids and constructs
// processes bound to one post office.
type Factory struct {
	po      *postoffice.PostOffice
	nextPid atomic.Uint32
}

// NewFactory creates a process factory bound to po.
func NewFactory(po *postoffice.PostOffice) *Factory {
	return &Factory{po: po}
}

// Spawn creates a new process with a fresh table, group, and parent
// mailbox, attaching metadata. The parent mailbox always occupies
// handle ParentHandle in the new process's own table, with full
// permissions — a process always holds a capability to itself.
func (f *Factory) Spawn(metadata Metadata) *Process {
	table := f.po.NewTable()
	group := f.po.NewGroup(table)
	return f.bind(table, group, metadata)
}

// SpawnAdopting constructs a process around an already-existing table
// rather than a fresh one from Spawn.
func (f *Factory) SpawnAdopting(table *postoffice.Table, metadata Metadata) *Process {
	group := f.po.NewGroup(table)
	return f.bind(table, group, metadata)
}

func (f *Factory) bind(table *postoffice.Table, group *postoffice.MailboxGroup, metadata Metadata) *Process {
	pid := f.nextPid.Add(1)
	parent := group.NewMailbox()

	selfCap := parent.Export(hearth.PermAll)
	if h := table.Import(selfCap); h != ParentHandle {
		log.WithComponent("process").Warn().
			Uint32("pid", pid).
			Uint32("handle", uint32(h)).
			Msg("parent mailbox did not land on handle 0; a freshly spawned process's table must be empty")
	}

	return &Process{
		Table:  table,
		Info:   Info{Pid: pid, Metadata: metadata},
		Group:  group,
		Parent: parent,
	}
}
