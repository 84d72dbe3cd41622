package codec

import (
	"encoding/binary"
	"io"

	"github.com/go-faster/errors"
)

// intermediateMagic is the 4-byte marker that opens an intermediate-framed
// connection (spec.md §4.1).
var intermediateMagic = [4]byte{0xee, 0xee, 0xee, 0xee}

// maxPayload bounds a single intermediate frame; the protocol requires "no
// less than 1 MiB" — we allow a generous margin above the minimum for large
// RPC results (e.g. updates.getDifference) while still rejecting runaway
// lengths from a corrupt stream.
const maxPayload = 16 * 1024 * 1024

// Intermediate implements the "intermediate" transport framing.
type Intermediate struct{}

var _ Codec = Intermediate{}

// WriteHeader sends the intermediate magic.
func (Intermediate) WriteHeader(w io.Writer) error {
	_, err := w.Write(intermediateMagic[:])
	return errors.Wrap(err, "write intermediate header")
}

// ReadHeader is a no-op: only the connection initiator sends a header.
func (Intermediate) ReadHeader(io.Reader) error { return nil }

// Write encodes one intermediate frame: a little-endian u32 length followed
// by the payload. Length must be a multiple of 4.
func (Intermediate) Write(w io.Writer, data []byte) error {
	if len(data)%4 != 0 {
		return errors.New("intermediate: payload length must be a multiple of 4")
	}
	var head [4]byte
	putUint32(head[:], uint32(len(data)))
	if _, err := w.Write(head[:]); err != nil {
		return errors.Wrap(err, "write length")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "write payload")
	}
	return nil
}

// Read decodes one intermediate frame.
func (Intermediate) Read(r io.Reader) ([]byte, error) {
	var head [4]byte
	if err := readFull(r, head[:]); err != nil {
		return nil, errors.Wrap(err, "read length")
	}
	n := binary.LittleEndian.Uint32(head[:])
	if int32(n) < 0 {
		return nil, &ProtocolErr{Code: int32(n)}
	}
	if n > maxPayload {
		return nil, errors.Newf("intermediate: frame too large: %d", n)
	}
	if n%4 != 0 {
		return nil, errors.New("intermediate: payload length must be a multiple of 4")
	}
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "read payload")
	}
	return buf, nil
}
