package codec

import (
	"io"

	"github.com/go-faster/errors"
)

// abridgedMagic is the 1-byte marker that opens an abridged-framed connection.
const abridgedMagic = 0xef

// ErrQuickAck is returned by Abridged.Read when it sees a quick-ack marker
// (the length byte's high bit set) instead of a normal frame. These carry no
// payload; spec.md §4.1 requires the handshake phase to tolerate and skip
// them rather than treat them as a framing error.
var ErrQuickAck = errors.New("abridged: quick-ack frame")

// Abridged implements the "abridged" transport framing.
type Abridged struct{}

var _ Codec = Abridged{}

// WriteHeader sends the abridged magic byte.
func (Abridged) WriteHeader(w io.Writer) error {
	_, err := w.Write([]byte{abridgedMagic})
	return errors.Wrap(err, "write abridged header")
}

// ReadHeader is a no-op: only the connection initiator sends a header.
func (Abridged) ReadHeader(io.Reader) error { return nil }

// Write encodes one abridged frame: length/4 as a single byte if <127,
// otherwise 0x7F followed by a 3-byte little-endian length/4.
func (Abridged) Write(w io.Writer, data []byte) error {
	if len(data)%4 != 0 {
		return errors.New("abridged: payload length must be a multiple of 4")
	}
	words := len(data) / 4
	if words < 127 {
		if _, err := w.Write([]byte{byte(words)}); err != nil {
			return errors.Wrap(err, "write length")
		}
	} else {
		head := []byte{0x7f, byte(words), byte(words >> 8), byte(words >> 16)}
		if _, err := w.Write(head); err != nil {
			return errors.Wrap(err, "write length")
		}
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "write payload")
	}
	return nil
}

// Read decodes one abridged frame.
func (Abridged) Read(r io.Reader) ([]byte, error) {
	var first [1]byte
	if err := readFull(r, first[:]); err != nil {
		return nil, errors.Wrap(err, "read length")
	}

	var words int
	if first[0] < 127 {
		words = int(first[0])
	} else if first[0] == 127 {
		var rest [3]byte
		if err := readFull(r, rest[:]); err != nil {
			return nil, errors.Wrap(err, "read extended length")
		}
		words = int(rest[0]) | int(rest[1])<<8 | int(rest[2])<<16
	} else {
		// High bit set on the length byte: a quick-ack marker, not the start
		// of a normal frame. Surface it as a distinct sentinel so callers can
		// skip it and read the next frame instead of treating it as corrupt
		// framing (spec.md §4.1).
		return nil, ErrQuickAck
	}

	n := words * 4
	if n > maxPayload {
		return nil, errors.Newf("abridged: frame too large: %d", n)
	}
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "read payload")
	}
	return buf, nil
}
