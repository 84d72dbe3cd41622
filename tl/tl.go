// Package tl hand-writes the slice of the TL schema the protocol core
// actually touches: the service-level envelope objects (rpc_result,
// bad_server_salt, ...) and the application-level shapes the updates engine
// and entity cache route on (users, chats, updates, peers). It stands in
// for the generated TL schema registry spec.md §1 puts out of scope: a real
// deployment would swap this package for generated code without touching
// any other layer, since every other package only depends on the
// interfaces defined here (Object, UpdatesClass, UserClass, ChatClass).
package tl

import (
	"context"

	"github.com/meniwap/telecraftor-core/bin"
)

// Object is any TL value that can appear standalone on the wire, prefixed
// by its constructor id.
type Object interface {
	bin.Encoder
	bin.Decoder
	TypeID() uint32
}

// Invoker is the single method every RPC sender and middleware composes
// over: encode a request, decode its reply.
type Invoker interface {
	Invoke(ctx context.Context, input bin.Encoder, output bin.Decoder) error
}

// Unknown preserves an unrecognized constructor's raw bytes instead of
// failing decode outright (spec.md §9, "forward compatibility").
type Unknown struct {
	ConstructorID uint32
	Body          []byte
}

func (u *Unknown) TypeID() uint32 { return u.ConstructorID }

func (u *Unknown) Encode(b *bin.Buffer) error {
	b.PutID(u.ConstructorID)
	b.PutRaw(u.Body)
	return nil
}

func (u *Unknown) Decode(b *bin.Buffer) error {
	id, err := b.ConsumeID()
	if err != nil {
		return err
	}
	u.ConstructorID = id
	u.Body = append([]byte(nil), b.Buf...)
	b.Buf = nil
	return nil
}
