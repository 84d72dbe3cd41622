package proto

import (
	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/bin"
)

// UnencryptedMessage is the wire layout of every handshake message (§4.2):
// a message id followed by the length-prefixed encoded body. Unlike
// encrypted messages, there is no salt/session/seqno and no auth-key-id
// prefix — the transport frame boundary is the only framing.
type UnencryptedMessage struct {
	MessageID   int64
	MessageData []byte
}

// Encode writes the message id and length-prefixed body.
func (m *UnencryptedMessage) Encode(b *bin.Buffer) error {
	b.PutInt64(m.MessageID)
	b.PutInt32(int32(len(m.MessageData)))
	b.PutRaw(m.MessageData)
	return nil
}

// Decode reads the message id and length-prefixed body.
func (m *UnencryptedMessage) Decode(b *bin.Buffer) error {
	id, err := b.Int64()
	if err != nil {
		return errors.Wrap(err, "message id")
	}
	length, err := b.Int32()
	if err != nil {
		return errors.Wrap(err, "length")
	}
	data, err := b.Raw(int(length))
	if err != nil {
		return errors.Wrap(err, "data")
	}
	m.MessageID = id
	m.MessageData = data
	return nil
}
