package connection

import "github.com/vmihailenco/msgpack/v5"

// Op identifies a CapOperation variant on the wire.
type Op byte

const (
	OpDeclareCap Op = iota
	OpRevokeCap
	OpSetRootCap
	OpAcknowledgeRevocation
	OpFreeCap
	OpSend
	OpKill
)

// frame is the wire envelope for one CapOperation: a numeric opcode tag
// plus a deferred-decode msgpack payload, decoded into the matching
// operation struct once the opcode is known.
type frame struct {
	Op   Op                 `msgpack:"op"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// declareCap announces availability of a local capability to the peer.
type declareCap struct {
	Id    uint32 `msgpack:"id"`
	Perms uint32 `msgpack:"perms"`
}

// revokeCap tells the peer a previously-declared capability's route has
// closed.
type revokeCap struct {
	Id     uint32 `msgpack:"id"`
	Reason uint8  `msgpack:"reason"`
}

// setRootCap designates id as the connection's application entry point.
type setRootCap struct {
	Id uint32 `msgpack:"id"`
}

// acknowledgeRevocation frees an export id for reuse by the sender.
type acknowledgeRevocation struct {
	Id uint32 `msgpack:"id"`
}

// freeCap tells the sender's peer it may reclaim an import id.
type freeCap struct {
	Id uint32 `msgpack:"id"`
}

// sendOp delivers a message to the local capability named by id,
// carrying zero or more attached capability ids resolved through the
// receiver's imports table.
type sendOp struct {
	Id   uint32   `msgpack:"id"`
	Data []byte   `msgpack:"data"`
	Caps []uint32 `msgpack:"caps"`
}

// killOp closes the group of the local capability's route.
type killOp struct {
	Id uint32 `msgpack:"id"`
}

var opNames = [...]string{"declare_cap", "revoke_cap", "set_root_cap", "acknowledge_revocation", "free_cap", "send", "kill"}

// opName renders op as a metrics label, falling back to "unknown" for a
// value outside the known opcode range (a malformed frame's opcode
// byte, for instance).
func opName(op Op) string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

func encodePayload(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func decodePayload(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
