package connection

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/log"
	"github.com/cuemby/hearthd/pkg/metrics"
	"github.com/cuemby/hearthd/pkg/postoffice"
	"github.com/google/uuid"
)

// importEntry is one row of the imports table: a remote-declared
// capability id, backed locally by a proxy mailbox. Any local send into
// the proxy's capability is forwarded across the stream as a Remote
// Send operation tagged with id.
type importEntry struct {
	cap hearth.Capability
	mb  *postoffice.Mailbox
}

// Connection is one end of a CapTP-style remote capability projection.
// It owns one internal table and mailbox group used only to host proxy
// routes and to resolve locally-addressed exports.
type Connection struct {
	id string

	stream io.ReadWriteCloser

	po    *postoffice.PostOffice
	table *postoffice.Table
	group *postoffice.MailboxGroup

	writeMu sync.Mutex

	exportsMu    sync.Mutex
	exports      map[uint32]hearth.Capability
	exportsByCap map[hearth.Capability]uint32
	nextExportID uint32

	importsMu sync.Mutex
	imports   map[uint32]*importEntry

	rootCh    chan hearth.Capability
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New wraps stream as a connection on po, using table to host proxy
// routes and resolve local capability handles. table should belong to
// the process or subsystem that owns this connection.
func New(stream io.ReadWriteCloser, po *postoffice.PostOffice, table *postoffice.Table) *Connection {
	metrics.ConnectionsActive.Inc()
	return &Connection{
		id:           uuid.New().String(),
		stream:       stream,
		po:           po,
		table:        table,
		group:        po.NewGroup(table),
		exports:      make(map[uint32]hearth.Capability),
		exportsByCap: make(map[hearth.Capability]uint32),
		imports:      make(map[uint32]*importEntry),
		rootCh:       make(chan hearth.Capability, 1),
	}
}

// ID returns this connection's session identifier, stable for its
// lifetime and unique across every connection any runtime instance has
// ever held — useful for correlating log lines across both peers.
func (c *Connection) ID() string { return c.id }

// Start launches the connection's read loop. It returns once the
// stream is closed or ctx is cancelled.
func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	go func() {
		<-ctx.Done()
		c.stream.Close()
	}()

	l := log.WithComponent("connection").With().Str("connection_id", c.id).Logger()
	for {
		op, data, err := readFrame(c.stream)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("connection: read frame: %w", err)
		}
		if err := c.handleFrame(op, data); err != nil {
			l.Warn().Err(err).Uint8("op", uint8(op)).Msg("discarding malformed or invalid connection frame")
		}
	}
}

// Close tears down the connection's proxy routes and closes the
// underlying stream.
func (c *Connection) Close() error {
	c.closeOnce.Do(metrics.ConnectionsActive.Dec)
	if c.cancel != nil {
		c.cancel()
	}
	c.group.Kill()
	return c.stream.Close()
}

// Root blocks until the peer's root capability arrives, or ctx is
// cancelled.
func (c *Connection) Root(ctx context.Context) (hearth.Capability, error) {
	select {
	case cap := <-c.rootCh:
		return cap, nil
	case <-ctx.Done():
		return hearth.Capability{}, ctx.Err()
	}
}

// ExportRoot projects cap and announces it to the peer as this
// connection's root capability.
func (c *Connection) ExportRoot(cap hearth.Capability) error {
	id, err := c.exportCapability(cap)
	if err != nil {
		return err
	}
	return c.writeOp(OpSetRootCap, setRootCap{Id: id})
}

// exportCapability projects a local capability onto the connection,
// declaring it to the peer if it has not already been, and returns its
// wire export id. An equal capability exported earlier reuses its
// existing id without a second declaration.
func (c *Connection) exportCapability(cap hearth.Capability) (uint32, error) {
	c.exportsMu.Lock()
	if id, ok := c.exportsByCap[cap]; ok {
		c.exportsMu.Unlock()
		return id, nil
	}
	id := c.nextExportID
	c.nextExportID++
	c.exports[id] = cap
	c.exportsByCap[cap] = id
	c.exportsMu.Unlock()

	if err := c.writeOp(OpDeclareCap, declareCap{Id: id, Perms: uint32(cap.Perms)}); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Connection) writeOp(op Op, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	metrics.ConnectionFramesWrittenTotal.WithLabelValues(opName(op)).Inc()
	return writeFrame(c.stream, op, payload)
}

func (c *Connection) handleFrame(op Op, data []byte) error {
	metrics.ConnectionFramesReadTotal.WithLabelValues(opName(op)).Inc()
	switch op {
	case OpDeclareCap:
		var p declareCap
		if err := decodePayload(data, &p); err != nil {
			return err
		}
		return c.onDeclareCap(p)
	case OpRevokeCap:
		var p revokeCap
		if err := decodePayload(data, &p); err != nil {
			return err
		}
		return c.onRevokeCap(p)
	case OpSetRootCap:
		var p setRootCap
		if err := decodePayload(data, &p); err != nil {
			return err
		}
		return c.onSetRootCap(p)
	case OpAcknowledgeRevocation:
		var p acknowledgeRevocation
		if err := decodePayload(data, &p); err != nil {
			return err
		}
		return c.onAcknowledgeRevocation(p)
	case OpFreeCap:
		var p freeCap
		if err := decodePayload(data, &p); err != nil {
			return err
		}
		return c.onFreeCap(p)
	case OpSend:
		var p sendOp
		if err := decodePayload(data, &p); err != nil {
			return err
		}
		return c.onSend(p)
	case OpKill:
		var p killOp
		if err := decodePayload(data, &p); err != nil {
			return err
		}
		return c.onKill(p)
	default:
		return fmt.Errorf("connection: unknown opcode %d: %w", op, hearth.ErrMalformedFrame)
	}
}

// onDeclareCap creates a local proxy mailbox for a remote-declared
// capability and starts a goroutine forwarding any signal delivered to
// it back across the stream as a Remote Send.
func (c *Connection) onDeclareCap(p declareCap) error {
	mb := c.group.NewMailbox()
	cap := hearth.Capability{Route: mb.RouteID(), Perms: hearth.Permissions(p.Perms)}

	c.importsMu.Lock()
	c.imports[p.Id] = &importEntry{cap: cap, mb: mb}
	c.importsMu.Unlock()

	go c.forwardProxy(p.Id, mb)
	return nil
}

// forwardProxy relays every Message delivered to the local proxy
// mailbox mb back to the peer as a Remote Send tagged with remoteID,
// projecting each attached local capability as needed.
func (c *Connection) forwardProxy(remoteID uint32, mb *postoffice.Mailbox) {
	l := log.WithComponent("connection")
	ctx := context.Background()
	for {
		_, err := mb.Recv(ctx, func(sig postoffice.Signal) (any, error) {
			msg, ok := sig.(postoffice.Message)
			if !ok {
				return nil, nil
			}
			capIDs := make([]uint32, 0, len(msg.Caps))
			for _, h := range msg.Caps {
				cap, err := c.table.Capability(h)
				if err != nil {
					l.Warn().Err(err).Msg("dropping unresolved capability in outgoing proxy send")
					continue
				}
				id, err := c.exportCapability(cap)
				if err != nil {
					return nil, err
				}
				capIDs = append(capIDs, id)
			}
			return nil, c.writeOp(OpSend, sendOp{Id: remoteID, Data: msg.Data, Caps: capIDs})
		})
		if err != nil {
			return
		}
	}
}

func (c *Connection) onRevokeCap(p revokeCap) error {
	c.importsMu.Lock()
	entry, ok := c.imports[p.Id]
	if ok {
		delete(c.imports, p.Id)
	}
	c.importsMu.Unlock()
	if !ok {
		return fmt.Errorf("connection: revoke unknown import %d: %w", p.Id, hearth.ErrMalformedFrame)
	}

	if err := c.group.DestroyMailbox(entry.mb); err != nil {
		log.WithComponent("connection").Warn().Err(err).Msg("revoked import's mailbox already gone")
	}
	return c.writeOp(OpAcknowledgeRevocation, acknowledgeRevocation{Id: p.Id})
}

func (c *Connection) onSetRootCap(p setRootCap) error {
	c.importsMu.Lock()
	entry, ok := c.imports[p.Id]
	c.importsMu.Unlock()
	if !ok {
		return fmt.Errorf("connection: root references unknown import %d: %w", p.Id, hearth.ErrMalformedFrame)
	}

	select {
	case c.rootCh <- entry.cap:
	default:
	}
	return nil
}

func (c *Connection) onAcknowledgeRevocation(p acknowledgeRevocation) error {
	c.exportsMu.Lock()
	defer c.exportsMu.Unlock()
	if cap, ok := c.exports[p.Id]; ok {
		delete(c.exports, p.Id)
		delete(c.exportsByCap, cap)
	}
	return nil
}

func (c *Connection) onFreeCap(p freeCap) error {
	c.exportsMu.Lock()
	defer c.exportsMu.Unlock()
	if cap, ok := c.exports[p.Id]; ok {
		delete(c.exports, p.Id)
		delete(c.exportsByCap, cap)
	}
	return nil
}

func (c *Connection) onSend(p sendOp) error {
	c.exportsMu.Lock()
	cap, ok := c.exports[p.Id]
	c.exportsMu.Unlock()
	if !ok {
		return fmt.Errorf("connection: send references unknown export %d: %w", p.Id, hearth.ErrMalformedFrame)
	}
	if !cap.Perms.Has(hearth.PermSend) {
		return fmt.Errorf("connection: send to export %d: %w", p.Id, hearth.ErrPermissionDenied)
	}

	capHandles := make([]hearth.Handle, 0, len(p.Caps))
	c.importsMu.Lock()
	for _, cid := range p.Caps {
		entry, ok := c.imports[cid]
		if !ok {
			log.WithComponent("connection").Warn().Uint32("import_id", cid).
				Msg("dropping unresolved capability in incoming send")
			continue
		}
		capHandles = append(capHandles, c.table.Import(entry.cap))
	}
	c.importsMu.Unlock()

	h := c.table.Import(cap)
	return c.table.Send(h, p.Data, capHandles)
}

func (c *Connection) onKill(p killOp) error {
	c.exportsMu.Lock()
	cap, ok := c.exports[p.Id]
	c.exportsMu.Unlock()
	if !ok {
		return fmt.Errorf("connection: kill references unknown export %d: %w", p.Id, hearth.ErrMalformedFrame)
	}
	if !cap.Perms.Has(hearth.PermKill) {
		return fmt.Errorf("connection: kill export %d: %w", p.Id, hearth.ErrPermissionDenied)
	}

	h := c.table.Import(cap)
	return c.table.Kill(h)
}
