package mtproto

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/proto"
	"github.com/meniwap/telecraftor-core/tl"
	"github.com/meniwap/telecraftor-core/transport"
)

// Conn is a single encrypted MTProto connection: a transport, the session
// key material it encrypts under, and the id/seqno generators governing
// outgoing messages.
type Conn struct {
	transport transport.Conn
	log       *zap.Logger
	handler   Handler

	session Session
	ids     *proto.IDGen
	seqno   SeqNoGen
}

// NewConn wraps an already-connected transport.Conn with the session keys
// and seqno state needed to speak the encrypted protocol.
func NewConn(t transport.Conn, session Session, handler Handler, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		transport: t,
		log:       log,
		handler:   handler,
		session:   session,
		ids:       proto.NewMessageIDGen(time.Now),
	}
}

// Session returns the connection's current key material, salt and session
// id. Callers mutate Salt/SessionID through SetSalt/SetSessionID, not by
// holding a reference to this value.
func (c *Conn) Session() Session { return c.session }

// SetSalt installs a new server salt, e.g. after bad_server_salt or a
// future_salts refresh.
func (c *Conn) SetSalt(salt int64) { c.session.Salt = salt }

// SetSessionID installs a new session id and resets the seqno counter, as
// spec.md §4.4 requires when the session is reset.
func (c *Conn) SetSessionID(id int64) {
	c.session.SessionID = id
	c.seqno.Reset()
}

// Send encrypts body as a single content-related message and writes it to
// the transport, returning the msg_id it was assigned.
func (c *Conn) Send(ctx context.Context, body []byte) (int64, error) {
	return c.send(ctx, body, true)
}

// SendService is like Send but marks the message as a pure-service message
// (even seqno, per spec.md §4.4), used for acks and pings.
func (c *Conn) SendService(ctx context.Context, body []byte) (int64, error) {
	return c.send(ctx, body, false)
}

func (c *Conn) send(ctx context.Context, body []byte, contentRelated bool) (int64, error) {
	msgID := c.ids.New()
	seqNo := c.seqno.Next(contentRelated)
	frame, err := EncodeEnvelope(c.session, int64(msgID), seqNo, body)
	if err != nil {
		return 0, errors.Wrap(err, "encode envelope")
	}
	var buf bin.Buffer
	buf.ResetTo(frame)
	if err := c.transport.Send(ctx, &buf); err != nil {
		return 0, errors.Wrap(err, "transport send")
	}
	return int64(msgID), nil
}

// Recv reads one frame from the transport, decrypts it, and dispatches its
// contents. It blocks until a frame arrives, ctx is done, or the transport
// closes.
func (c *Conn) Recv(ctx context.Context) error {
	var buf bin.Buffer
	if err := c.transport.Recv(ctx, &buf); err != nil {
		return errors.Wrap(err, "transport recv")
	}
	decoded, err := DecodeEnvelope(c.session, buf.Buf)
	if err != nil {
		return errors.Wrap(err, "decode envelope")
	}
	return c.handleMessage(ctx, decoded.MsgID, decoded.Body)
}

// handleMessage dispatches one decrypted message body, unwrapping
// msg_container and gzip_packed recursively and routing everything else to
// the Handler (spec.md §4.4 steps 1-8).
func (c *Conn) handleMessage(ctx context.Context, msgID int64, body []byte) error {
	var peek bin.Buffer
	peek.ResetTo(body)
	id, err := peek.PeekID()
	if err != nil {
		return errors.Wrap(err, "peek constructor")
	}

	if id != proto.IDMessageContainer && id != proto.IDGZIP {
		c.handler.OnMessage(ctx, msgID)
	}

	switch id {
	case proto.IDMessageContainer:
		var b bin.Buffer
		b.ResetTo(body)
		var container proto.MessageContainer
		if err := container.Decode(&b); err != nil {
			return errors.Wrap(err, "decode msg_container")
		}
		for i := range container.Messages {
			m := container.Messages[i]
			if err := c.handleMessage(ctx, m.MsgID, m.Body); err != nil {
				c.log.Warn("container entry dispatch failed", zap.Int64("msg_id", m.MsgID), zap.Error(err))
			}
		}
		return nil

	case proto.IDGZIP:
		var b bin.Buffer
		b.ResetTo(body)
		var wrapper proto.GZIP
		if err := wrapper.Decode(&b); err != nil {
			return errors.Wrap(err, "decode gzip_packed")
		}
		inner, err := gunzip(wrapper.Data)
		if err != nil {
			return errors.Wrap(err, "gunzip")
		}
		return c.handleMessage(ctx, msgID, inner)

	case tl.IDRpcResult:
		var b bin.Buffer
		b.ResetTo(body)
		var result tl.RpcResult
		if err := result.Decode(&b); err != nil {
			return errors.Wrap(err, "decode rpc_result")
		}
		return c.handler.OnRPCResult(ctx, result.ReqMsgID, result.Result)

	case tl.IDNewSessionCreated:
		var b bin.Buffer
		b.ResetTo(body)
		var ns tl.NewSessionCreated
		if err := ns.Decode(&b); err != nil {
			return errors.Wrap(err, "decode new_session_created")
		}
		c.SetSalt(ns.ServerSalt)
		return c.handler.OnNewSession(ctx, NewSession{
			FirstMsgID: ns.FirstMsgID,
			UniqueID:   ns.UniqueID,
			ServerSalt: ns.ServerSalt,
		})

	case tl.IDBadServerSalt:
		var b bin.Buffer
		b.ResetTo(body)
		var bad tl.BadServerSalt
		if err := bad.Decode(&b); err != nil {
			return errors.Wrap(err, "decode bad_server_salt")
		}
		c.SetSalt(bad.NewServerSalt)
		return c.handler.OnBadServerSalt(ctx, bad.BadMsgID, bad.NewServerSalt)

	case tl.IDBadMsgNotification:
		var b bin.Buffer
		b.ResetTo(body)
		var bad tl.BadMsgNotification
		if err := bad.Decode(&b); err != nil {
			return errors.Wrap(err, "decode bad_msg_notification")
		}
		return c.handler.OnBadMsgNotification(ctx, bad.BadMsgID, bad.BadMsgSeqNo, bad.ErrorCode)

	case tl.IDMsgsAck:
		var b bin.Buffer
		b.ResetTo(body)
		var ack tl.MsgsAck
		if err := ack.Decode(&b); err != nil {
			return errors.Wrap(err, "decode msgs_ack")
		}
		c.handler.OnAck(ack.MsgIDs)
		return nil

	case tl.IDFutureSalts:
		var b bin.Buffer
		b.ResetTo(body)
		var salts tl.FutureSalts
		if err := salts.Decode(&b); err != nil {
			return errors.Wrap(err, "decode future_salts")
		}
		c.handler.OnFutureSalts(salts.ReqMsgID, salts.Now, salts.Salts)
		return nil

	case tl.IDPong:
		var b bin.Buffer
		b.ResetTo(body)
		var pong tl.Pong
		if err := pong.Decode(&b); err != nil {
			return errors.Wrap(err, "decode pong")
		}
		c.handler.OnPong(pong.MsgID, pong.PingID)
		return nil

	default:
		// Not one of the service constructors this layer understands: an
		// update or updates container, left TL-encoded for the caller.
		return c.handler.OnUpdates(ctx, body)
	}
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
