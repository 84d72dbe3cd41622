// Package bin implements the low-level binary encoding MTProto's TL
// serialization uses: fixed-width little-endian integers, length-prefixed
// byte strings with the TL padding rule, and a growable buffer shared by
// every layer above it.
package bin

import (
	"encoding/binary"

	"github.com/go-faster/errors"
)

// Buffer is a growable byte buffer used to encode and decode TL values.
//
// The zero value is ready to use.
type Buffer struct {
	Buf []byte
}

// Encoder writes itself to a Buffer.
type Encoder interface {
	Encode(b *Buffer) error
}

// Decoder reads itself from a Buffer.
type Decoder interface {
	Decode(b *Buffer) error
}

// Reset zeroes the buffer length without releasing its backing array.
func (b *Buffer) Reset() {
	b.Buf = b.Buf[:0]
}

// ResetTo replaces the buffer contents with data. The buffer does not copy
// data; callers must not mutate it afterwards.
func (b *Buffer) ResetTo(data []byte) {
	b.Buf = data
}

// Copy returns a copy of the buffer's current contents.
func (b *Buffer) Copy() []byte {
	r := make([]byte, len(b.Buf))
	copy(r, b.Buf)
	return r
}

// Len returns the number of unread/unwritten bytes currently in the buffer.
func (b *Buffer) Len() int {
	return len(b.Buf)
}

// ErrInvalidLength is returned when a read would run past the end of the buffer.
var ErrInvalidLength = errors.New("invalid length")

func (b *Buffer) take(n int) ([]byte, error) {
	if n < 0 || n > len(b.Buf) {
		return nil, ErrInvalidLength
	}
	v := b.Buf[:n]
	b.Buf = b.Buf[n:]
	return v, nil
}

// PutUint32 appends a little-endian uint32.
func (b *Buffer) PutUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Buf = append(b.Buf, tmp[:]...)
}

// Uint32 consumes a little-endian uint32.
func (b *Buffer) Uint32() (uint32, error) {
	v, err := b.take(4)
	if err != nil {
		return 0, errors.Wrap(err, "uint32")
	}
	return binary.LittleEndian.Uint32(v), nil
}

// PutInt32 appends a little-endian int32.
func (b *Buffer) PutInt32(v int32) { b.PutUint32(uint32(v)) }

// Int32 consumes a little-endian int32.
func (b *Buffer) Int32() (int32, error) {
	v, err := b.Uint32()
	return int32(v), err
}

// PutUint64 appends a little-endian uint64.
func (b *Buffer) PutUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Buf = append(b.Buf, tmp[:]...)
}

// Uint64 consumes a little-endian uint64.
func (b *Buffer) Uint64() (uint64, error) {
	v, err := b.take(8)
	if err != nil {
		return 0, errors.Wrap(err, "uint64")
	}
	return binary.LittleEndian.Uint64(v), nil
}

// PutInt64 appends a little-endian int64.
func (b *Buffer) PutInt64(v int64) { b.PutUint64(uint64(v)) }

// Int64 consumes a little-endian int64.
func (b *Buffer) Int64() (int64, error) {
	v, err := b.Uint64()
	return int64(v), err
}

// PutInt128 appends a 16-byte value as-is.
func (b *Buffer) PutInt128(v [16]byte) { b.Buf = append(b.Buf, v[:]...) }

// Int128 consumes a 16-byte value.
func (b *Buffer) Int128() ([16]byte, error) {
	var out [16]byte
	v, err := b.take(16)
	if err != nil {
		return out, errors.Wrap(err, "int128")
	}
	copy(out[:], v)
	return out, nil
}

// PutInt256 appends a 32-byte value as-is.
func (b *Buffer) PutInt256(v [32]byte) { b.Buf = append(b.Buf, v[:]...) }

// Int256 consumes a 32-byte value.
func (b *Buffer) Int256() ([32]byte, error) {
	var out [32]byte
	v, err := b.take(32)
	if err != nil {
		return out, errors.Wrap(err, "int256")
	}
	copy(out[:], v)
	return out, nil
}

// PutRaw appends raw bytes without any length prefix or padding.
func (b *Buffer) PutRaw(v []byte) { b.Buf = append(b.Buf, v...) }

// Raw consumes n raw bytes without interpreting padding.
func (b *Buffer) Raw(n int) ([]byte, error) {
	v, err := b.take(n)
	if err != nil {
		return nil, errors.Wrap(err, "raw")
	}
	out := make([]byte, n)
	copy(out, v)
	return out, nil
}

// PutBytes appends a TL "string" value: a length-prefixed byte string padded
// to a multiple of 4 bytes.
func (b *Buffer) PutBytes(v []byte) {
	n := len(v)
	switch {
	case n < 254:
		b.Buf = append(b.Buf, byte(n))
	default:
		b.Buf = append(b.Buf, 254, byte(n), byte(n>>8), byte(n>>16))
	}
	b.Buf = append(b.Buf, v...)
	if pad := padding(n); pad > 0 {
		b.Buf = append(b.Buf, make([]byte, pad)...)
	}
}

// padding returns the number of padding bytes a length-n byte string needs
// including its own length prefix, per TL's "round up to 4" rule.
func padding(n int) int {
	prefix := 1
	if n >= 254 {
		prefix = 4
	}
	total := prefix + n
	if mod := total % 4; mod != 0 {
		return 4 - mod
	}
	return 0
}

// Bytes consumes a TL "string" value.
func (b *Buffer) Bytes() ([]byte, error) {
	if len(b.Buf) == 0 {
		return nil, ErrInvalidLength
	}
	first := b.Buf[0]
	var n int
	var prefix int
	if first == 254 {
		if len(b.Buf) < 4 {
			return nil, ErrInvalidLength
		}
		n = int(b.Buf[1]) | int(b.Buf[2])<<8 | int(b.Buf[3])<<16
		prefix = 4
	} else {
		n = int(first)
		prefix = 1
	}
	if _, err := b.take(prefix); err != nil {
		return nil, errors.Wrap(err, "bytes prefix")
	}
	v, err := b.take(n)
	if err != nil {
		return nil, errors.Wrap(err, "bytes data")
	}
	out := make([]byte, n)
	copy(out, v)
	if pad := padding(n); pad > 0 {
		if _, err := b.take(pad); err != nil {
			return nil, errors.Wrap(err, "bytes padding")
		}
	}
	return out, nil
}

// PutString appends a TL "string" value built from a Go string.
func (b *Buffer) PutString(v string) { b.PutBytes([]byte(v)) }

// String consumes a TL "string" value as a Go string.
func (b *Buffer) String() (string, error) {
	v, err := b.Bytes()
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// PeekID returns the 4-byte little-endian constructor id at the front of the
// buffer without consuming it. Used to dispatch on TL type before decoding.
func (b *Buffer) PeekID() (uint32, error) {
	if len(b.Buf) < 4 {
		return 0, ErrInvalidLength
	}
	return binary.LittleEndian.Uint32(b.Buf[:4]), nil
}

// PutID appends a 4-byte little-endian constructor id.
func (b *Buffer) PutID(id uint32) { b.PutUint32(id) }

// ConsumeID consumes the 4-byte little-endian constructor id.
func (b *Buffer) ConsumeID() (uint32, error) { return b.Uint32() }
