// Package codec implements the two MTProto transport framings: intermediate
// and abridged (spec.md §4.1).
package codec

import (
	"encoding/binary"
	"io"

	"github.com/go-faster/errors"
)

// Codec frames and unframes MTProto messages over a byte stream.
type Codec interface {
	// WriteHeader sends the framing's magic byte(s), once, at connection start.
	WriteHeader(w io.Writer) error
	// ReadHeader is a no-op for these framings: the client is the one that
	// announces the framing, so a client-side codec never reads a header.
	ReadHeader(r io.Reader) error
	// Write encodes one frame.
	Write(w io.Writer, data []byte) error
	// Read decodes one frame.
	Read(r io.Reader) ([]byte, error)
}

// ProtocolErr is returned for frame-level errors (spec.md §7, "Framing
// errors"). Code mirrors the intermediate-framing 4-byte error convention
// the server may send in place of a length (a negative int32 error code).
type ProtocolErr struct {
	Code int32
}

func (e *ProtocolErr) Error() string {
	return errorMessage(e.Code)
}

// Well-known transport error codes (negated length fields the server sends
// instead of a normal frame).
const (
	CodeAuthKeyNotFound int32 = -404
	CodeTransportFlood  int32 = -429
)

func errorMessage(code int32) string {
	switch code {
	case CodeAuthKeyNotFound:
		return "transport: auth key not found"
	case CodeTransportFlood:
		return "transport: flood"
	default:
		return "transport: error code " + itoa(code)
	}
}

func itoa(v int32) string {
	neg := v < 0
	if neg {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ErrUnexpectedEOF wraps an EOF seen mid-frame (spec.md §7).
var ErrUnexpectedEOF = errors.Wrap(io.ErrUnexpectedEOF, "codec")

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return errors.Wrap(err, "read frame")
		}
		return errors.Wrap(err, "read")
	}
	return nil
}

func putUint32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}
