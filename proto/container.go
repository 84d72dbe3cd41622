package proto

import (
	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/bin"
)

// Well-known constructor ids for the content-agnostic envelope wrappers
// (spec.md §4.4 steps 1-2), per MTProto's public schema.
const (
	IDMessageContainer uint32 = 0x73f1f8dc
	IDGZIP             uint32 = 0x3072cfa1
)

// Message is one entry of a msg_container: an inner message alongside its
// own id, seqno and encoded length.
type Message struct {
	MsgID    int64
	SeqNo    int32
	Bytes    int32
	Body     []byte
}

// Encode writes one container entry.
func (m *Message) Encode(b *bin.Buffer) error {
	b.PutInt64(m.MsgID)
	b.PutInt32(m.SeqNo)
	b.PutInt32(int32(len(m.Body)))
	b.PutRaw(m.Body)
	return nil
}

// Decode reads one container entry.
func (m *Message) Decode(b *bin.Buffer) error {
	id, err := b.Int64()
	if err != nil {
		return errors.Wrap(err, "msg_id")
	}
	seq, err := b.Int32()
	if err != nil {
		return errors.Wrap(err, "seqno")
	}
	length, err := b.Int32()
	if err != nil {
		return errors.Wrap(err, "bytes")
	}
	body, err := b.Raw(int(length))
	if err != nil {
		return errors.Wrap(err, "body")
	}
	m.MsgID, m.SeqNo, m.Bytes, m.Body = id, seq, length, body
	return nil
}

// MessageContainer groups several messages the client should acknowledge or
// dispatch together (spec.md §4.4 step 1).
type MessageContainer struct {
	Messages []Message
}

// Encode writes the container: id, count, then each message.
func (c *MessageContainer) Encode(b *bin.Buffer) error {
	b.PutID(IDMessageContainer)
	b.PutInt32(int32(len(c.Messages)))
	for i := range c.Messages {
		if err := c.Messages[i].Encode(b); err != nil {
			return errors.Wrapf(err, "message %d", i)
		}
	}
	return nil
}

// Decode reads a container including its id prefix: it consumes the id
// and rejects any constructor other than msg_container, so the dispatch
// site only peeks the id before calling it.
func (c *MessageContainer) Decode(b *bin.Buffer) error {
	id, err := b.ConsumeID()
	if err != nil {
		return errors.Wrap(err, "id")
	}
	if id != IDMessageContainer {
		return errors.Newf("unexpected constructor %#x for msg_container", id)
	}
	n, err := b.Int32()
	if err != nil {
		return errors.Wrap(err, "count")
	}
	msgs := make([]Message, n)
	for i := range msgs {
		if err := msgs[i].Decode(b); err != nil {
			return errors.Wrapf(err, "message %d", i)
		}
	}
	c.Messages = msgs
	return nil
}

// GZIP wraps a gzip-compressed inner message (spec.md §4.4 step 2).
type GZIP struct {
	Data []byte
}

// Encode writes the gzip wrapper.
func (g *GZIP) Encode(b *bin.Buffer) error {
	b.PutID(IDGZIP)
	b.PutBytes(g.Data)
	return nil
}

// Decode reads a gzip wrapper including its id prefix, which it consumes
// and checks.
func (g *GZIP) Decode(b *bin.Buffer) error {
	id, err := b.ConsumeID()
	if err != nil {
		return errors.Wrap(err, "id")
	}
	if id != IDGZIP {
		return errors.Newf("unexpected constructor %#x for gzip_packed", id)
	}
	data, err := b.Bytes()
	if err != nil {
		return errors.Wrap(err, "data")
	}
	g.Data = data
	return nil
}
