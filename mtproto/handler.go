package mtproto

import (
	"context"

	"github.com/meniwap/telecraftor-core/tl"
)

// NewSession is delivered when the server announces a fresh session via
// new_session_created (spec.md §4.4 step 4).
type NewSession struct {
	FirstMsgID   int64
	UniqueID     int64
	ServerSalt   int64
}

// Handler receives everything Conn decodes out of an encrypted envelope
// once the low-level framing (container, gzip) has been peeled off. It is
// implemented by the rpc layer; mtproto itself never looks inside an
// rpc_result or an update.
type Handler interface {
	// OnMessage is called once for every top-level (post container/gzip
	// unwrap) message before its specific dispatch, so the handler can track
	// which msg_ids still need acknowledging (spec.md §4.4, "ack buffer").
	OnMessage(ctx context.Context, msgID int64)
	// OnRPCResult delivers a decoded rpc_result body for the request with
	// the given msg_id, still TL-encoded.
	OnRPCResult(ctx context.Context, reqMsgID int64, result []byte) error
	// OnBadServerSalt tells the handler the request identified by badMsgID
	// must be retransmitted against newSalt (spec.md §4.4 step 5).
	OnBadServerSalt(ctx context.Context, badMsgID int64, newSalt int64) error
	// OnBadMsgNotification tells the handler the request identified by
	// badMsgID failed for the reason code and must decide whether to
	// retransmit (spec.md §4.4 step 5).
	OnBadMsgNotification(ctx context.Context, badMsgID int64, badSeqNo int32, code int32) error
	// OnNewSession announces a server-initiated session reset.
	OnNewSession(ctx context.Context, s NewSession) error
	// OnUpdates delivers anything Conn didn't recognize as a service
	// message: an update or updates container, still TL-encoded with its
	// constructor id not yet consumed (spec.md §4.4 step 8).
	OnUpdates(ctx context.Context, body []byte) error
	// OnAck reports msg_ids the server acknowledged via msgs_ack.
	OnAck(msgIDs []int64)
	// OnPong reports a pong reply to one of our ping requests.
	OnPong(msgID, pingID int64)
	// OnFutureSalts delivers a future_salts reply.
	OnFutureSalts(reqMsgID int64, now int32, salts []tl.FutureSalt)
}
