package tl

import (
	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/bin"
)

// Well-known service-message constructor ids, per MTProto's public schema
// (these are the load-bearing ones the RPC sender dispatches on, spec.md
// §4.4).
const (
	IDRpcResult           uint32 = 0xf35c6d01
	IDRpcError            uint32 = 0x2144ca19
	IDNewSessionCreated   uint32 = 0x9ec20908
	IDBadServerSalt       uint32 = 0xedab447b
	IDBadMsgNotification  uint32 = 0xa7eff811
	IDMsgsAck             uint32 = 0x62d6b459
	IDFutureSalt          uint32 = 0x0949d9dc
	IDFutureSalts         uint32 = 0xae500895
	IDPong                uint32 = 0x347773c5
)

// RpcResult wraps the response to one RPC call, correlated by ReqMsgID.
type RpcResult struct {
	ReqMsgID int64
	// Result holds the raw encoded reply body; the RPC sender re-enters
	// decoding on it (possibly after gzip/container unwrap) once it knows
	// which request type to decode into.
	Result []byte
}

func (r *RpcResult) TypeID() uint32 { return IDRpcResult }

func (r *RpcResult) Encode(b *bin.Buffer) error {
	b.PutID(IDRpcResult)
	b.PutInt64(r.ReqMsgID)
	b.PutRaw(r.Result)
	return nil
}

func (r *RpcResult) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != IDRpcResult {
		return errors.Newf("unexpected constructor %#x for rpc_result", id)
	}
	msgID, err := b.Int64()
	if err != nil {
		return errors.Wrap(err, "req_msg_id")
	}
	r.ReqMsgID = msgID
	r.Result = append([]byte(nil), b.Buf...)
	b.Buf = nil
	return nil
}

// RpcError is the server's RPC-level failure object.
type RpcError struct {
	ErrorCode    int32
	ErrorMessage string
}

func (e *RpcError) TypeID() uint32 { return IDRpcError }

func (e *RpcError) Encode(b *bin.Buffer) error {
	b.PutID(IDRpcError)
	b.PutInt32(e.ErrorCode)
	b.PutString(e.ErrorMessage)
	return nil
}

func (e *RpcError) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != IDRpcError {
		return errors.Newf("unexpected constructor %#x for rpc_error", id)
	}
	code, err := b.Int32()
	if err != nil {
		return errors.Wrap(err, "error_code")
	}
	msg, err := b.String()
	if err != nil {
		return errors.Wrap(err, "error_message")
	}
	e.ErrorCode, e.ErrorMessage = code, msg
	return nil
}

// NewSessionCreated tells the client a fresh server_salt is now in effect.
type NewSessionCreated struct {
	FirstMsgID int64
	UniqueID   int64
	ServerSalt int64
}

func (n *NewSessionCreated) TypeID() uint32 { return IDNewSessionCreated }

func (n *NewSessionCreated) Encode(b *bin.Buffer) error {
	b.PutID(IDNewSessionCreated)
	b.PutInt64(n.FirstMsgID)
	b.PutInt64(n.UniqueID)
	b.PutInt64(n.ServerSalt)
	return nil
}

func (n *NewSessionCreated) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != IDNewSessionCreated {
		return errors.Newf("unexpected constructor %#x for new_session_created", id)
	}
	var err error
	if n.FirstMsgID, err = b.Int64(); err != nil {
		return errors.Wrap(err, "first_msg_id")
	}
	if n.UniqueID, err = b.Int64(); err != nil {
		return errors.Wrap(err, "unique_id")
	}
	if n.ServerSalt, err = b.Int64(); err != nil {
		return errors.Wrap(err, "server_salt")
	}
	return nil
}

// BadServerSalt tells the client to retransmit BadMsgID using NewServerSalt.
type BadServerSalt struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
	NewServerSalt int64
}

func (s *BadServerSalt) TypeID() uint32 { return IDBadServerSalt }

func (s *BadServerSalt) Encode(b *bin.Buffer) error {
	b.PutID(IDBadServerSalt)
	b.PutInt64(s.BadMsgID)
	b.PutInt32(s.BadMsgSeqNo)
	b.PutInt32(s.ErrorCode)
	b.PutInt64(s.NewServerSalt)
	return nil
}

func (s *BadServerSalt) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != IDBadServerSalt {
		return errors.Newf("unexpected constructor %#x for bad_server_salt", id)
	}
	var err error
	if s.BadMsgID, err = b.Int64(); err != nil {
		return err
	}
	if s.BadMsgSeqNo, err = b.Int32(); err != nil {
		return err
	}
	if s.ErrorCode, err = b.Int32(); err != nil {
		return err
	}
	if s.NewServerSalt, err = b.Int64(); err != nil {
		return err
	}
	return nil
}

// BadMsgNotification reports an msg-id/seqno drift or salt problem for
// BadMsgID (spec.md §4.4 step 6).
type BadMsgNotification struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
}

func (n *BadMsgNotification) TypeID() uint32 { return IDBadMsgNotification }

func (n *BadMsgNotification) Encode(b *bin.Buffer) error {
	b.PutID(IDBadMsgNotification)
	b.PutInt64(n.BadMsgID)
	b.PutInt32(n.BadMsgSeqNo)
	b.PutInt32(n.ErrorCode)
	return nil
}

func (n *BadMsgNotification) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != IDBadMsgNotification {
		return errors.Newf("unexpected constructor %#x for bad_msg_notification", id)
	}
	var err error
	if n.BadMsgID, err = b.Int64(); err != nil {
		return err
	}
	if n.BadMsgSeqNo, err = b.Int32(); err != nil {
		return err
	}
	if n.ErrorCode, err = b.Int32(); err != nil {
		return err
	}
	return nil
}

// MsgsAck is a batch acknowledgement of content messages the client sent.
type MsgsAck struct {
	MsgIDs []int64
}

func (a *MsgsAck) TypeID() uint32 { return IDMsgsAck }

func (a *MsgsAck) Encode(b *bin.Buffer) error {
	b.PutID(IDMsgsAck)
	b.PutInt32(int32(len(a.MsgIDs)))
	for _, id := range a.MsgIDs {
		b.PutInt64(id)
	}
	return nil
}

func (a *MsgsAck) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != IDMsgsAck {
		return errors.Newf("unexpected constructor %#x for msgs_ack", id)
	}
	n, err := b.Int32()
	if err != nil {
		return err
	}
	ids := make([]int64, n)
	for i := range ids {
		if ids[i], err = b.Int64(); err != nil {
			return err
		}
	}
	a.MsgIDs = ids
	return nil
}

// FutureSalt is one entry of a future_salts response.
type FutureSalt struct {
	ValidSince int32
	ValidUntil int32
	Salt       int64
}

// FutureSalts is the reply to a salt-refresh request.
type FutureSalts struct {
	ReqMsgID int64
	Now      int32
	Salts    []FutureSalt
}

func (f *FutureSalts) TypeID() uint32 { return IDFutureSalts }

func (f *FutureSalts) Encode(b *bin.Buffer) error {
	b.PutID(IDFutureSalts)
	b.PutInt64(f.ReqMsgID)
	b.PutInt32(f.Now)
	b.PutInt32(int32(len(f.Salts)))
	for _, s := range f.Salts {
		b.PutID(IDFutureSalt)
		b.PutInt32(s.ValidSince)
		b.PutInt32(s.ValidUntil)
		b.PutInt64(s.Salt)
	}
	return nil
}

func (f *FutureSalts) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != IDFutureSalts {
		return errors.Newf("unexpected constructor %#x for future_salts", id)
	}
	var err error
	if f.ReqMsgID, err = b.Int64(); err != nil {
		return err
	}
	if f.Now, err = b.Int32(); err != nil {
		return err
	}
	n, err := b.Int32()
	if err != nil {
		return err
	}
	salts := make([]FutureSalt, n)
	for i := range salts {
		if _, err := b.ConsumeID(); err != nil {
			return err
		}
		if salts[i].ValidSince, err = b.Int32(); err != nil {
			return err
		}
		if salts[i].ValidUntil, err = b.Int32(); err != nil {
			return err
		}
		if salts[i].Salt, err = b.Int64(); err != nil {
			return err
		}
	}
	f.Salts = salts
	return nil
}

// Pong replies to a ping.
type Pong struct {
	MsgID  int64
	PingID int64
}

func (p *Pong) TypeID() uint32 { return IDPong }

func (p *Pong) Encode(b *bin.Buffer) error {
	b.PutID(IDPong)
	b.PutInt64(p.MsgID)
	b.PutInt64(p.PingID)
	return nil
}

func (p *Pong) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != IDPong {
		return errors.Newf("unexpected constructor %#x for pong", id)
	}
	var err error
	if p.MsgID, err = b.Int64(); err != nil {
		return err
	}
	if p.PingID, err = b.Int64(); err != nil {
		return err
	}
	return nil
}
