package connection

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/vmihailenco/msgpack/v5"
)

// maxFrameLen bounds a single frame's encoded size, guarding against a
// corrupt or hostile length prefix driving an unbounded allocation.
const maxFrameLen = 64 << 20 // 64 MiB

func writeFrame(w io.Writer, op Op, payload any) error {
	body, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("connection: encode payload: %w", err)
	}
	f := frame{Op: op, Data: body}
	encoded, err := msgpack.Marshal(f)
	if err != nil {
		return fmt.Errorf("connection: encode frame: %w", err)
	}

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(encoded)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("connection: write length prefix: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("connection: write frame body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) (Op, msgpack.RawMessage, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return 0, nil, err
	}
	n := binary.LittleEndian.Uint32(lenPrefix[:])
	if n > maxFrameLen {
		return 0, nil, fmt.Errorf("connection: frame length %d exceeds %d: %w", n, maxFrameLen, hearth.ErrMalformedFrame)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	var f frame
	if err := msgpack.Unmarshal(body, &f); err != nil {
		return 0, nil, fmt.Errorf("connection: decode frame: %w: %w", hearth.ErrMalformedFrame, err)
	}
	return f.Op, f.Data, nil
}
