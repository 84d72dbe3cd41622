package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/mtproto"
	"github.com/meniwap/telecraftor-core/tgerr"
	"github.com/meniwap/telecraftor-core/tl"
)

// UpdatesHandler receives anything the sender can't correlate with a pending
// call: an update or updates container, still TL-encoded (spec.md §4.4
// step 8).
type UpdatesHandler interface {
	HandleUpdates(ctx context.Context, body []byte) error
}

// EntityFeeder is the entity-ingestion hook spec.md §4.4 step 3 requires:
// every successful rpc_result is walked for `.users`/`.chats` before being
// handed back to the caller (SPEC_FULL.md §4.6).
type EntityFeeder interface {
	Feed(users []tl.UserClass, chats []tl.ChatClass)
}

// entitiesCarrier is implemented by decoded reply objects that expose the
// users/chats lists the entity feeder needs; objects that don't carry any
// are simply skipped.
type entitiesCarrier interface {
	Entities() (users []tl.UserClass, chats []tl.ChatClass)
}

type pendingEntry struct {
	body   []byte
	output bin.Decoder
	done   chan error
}

// Sender is the RPC layer (L3): it owns the pending map and ack buffer atop
// a single mtproto.Conn, and implements mtproto.Handler to receive the
// connection's dispatch callbacks.
type Sender struct {
	conn    *mtproto.Conn
	log     *zap.Logger
	updates UpdatesHandler
	feeder  EntityFeeder

	mu        sync.Mutex
	pending   map[int64]*pendingEntry
	closed    bool
	closeErr  error

	ackMu      sync.Mutex
	ackBuffer  []int64
	ackEvery   int
}

// NewSender builds a Sender with no Conn attached yet. The construction
// order is necessarily circular — mtproto.NewConn needs a Handler, and a
// Sender needs the Conn it sends through — so callers build the Sender
// first, pass it as the Handler to mtproto.NewConn, then call SetConn.
func NewSender(updates UpdatesHandler, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{
		log:      log,
		updates:  updates,
		pending:  make(map[int64]*pendingEntry),
		ackEvery: 16,
	}
}

// SetConn attaches the connection the sender transmits through. Must be
// called once, before Invoke or any mtproto.Handler callback fires.
func (s *Sender) SetConn(conn *mtproto.Conn) { s.conn = conn }

// SetFeeder installs the entity-ingestion hook. Nil disables it.
func (s *Sender) SetFeeder(f EntityFeeder) { s.feeder = f }

// Invoke encodes req, sends it as a content-related message, and blocks
// until either a reply decodes into resp, ctx is done, or the sender is
// closed (spec.md §4.4, "invoke(request, timeout) contract").
func (s *Sender) Invoke(ctx context.Context, req bin.Encoder, resp bin.Decoder) error {
	var buf bin.Buffer
	if err := req.Encode(&buf); err != nil {
		return errors.Wrap(err, "encode request")
	}

	if err := s.FlushAcks(ctx); err != nil {
		s.log.Warn("flush acks before request failed", zap.Error(err))
	}

	msgID, err := s.conn.Send(ctx, buf.Buf)
	if err != nil {
		return errors.Wrap(err, "send request")
	}

	entry := &pendingEntry{body: buf.Buf, output: resp, done: make(chan error, 1)}
	if err := s.register(msgID, entry); err != nil {
		return err
	}

	select {
	case err := <-entry.done:
		return err
	case <-ctx.Done():
		s.forget(msgID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", &TimeoutError{MsgID: msgID}, ctx.Err())
		}
		return ctx.Err()
	}
}

func (s *Sender) register(msgID int64, entry *pendingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.closeErr
	}
	s.pending[msgID] = entry
	return nil
}

func (s *Sender) forget(msgID int64) (*pendingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[msgID]
	delete(s.pending, msgID)
	return e, ok
}

// retransmit re-sends entry's cached request body under a fresh msg_id and
// re-registers it there, so the reply that eventually arrives for the new
// id still resolves the original caller's Invoke (spec.md:150-151, §4.4:
// bad_server_salt/bad_msg_notification must be transparent to the caller).
func (s *Sender) retransmit(ctx context.Context, entry *pendingEntry) {
	msgID, err := s.conn.Send(ctx, entry.body)
	if err != nil {
		entry.done <- errors.Wrap(err, "retransmit request")
		return
	}
	if err := s.register(msgID, entry); err != nil {
		entry.done <- err
	}
}

// Close tears the sender down: every still-pending call is resolved with
// ConnectionClosedError, matching spec.md §4.4's "cancellation" rule applied
// in reverse (nothing can safely be delivered once closed).
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = &ConnectionClosedError{}
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, e := range pending {
		e.done <- s.closeErr
	}
}

// --- mtproto.Handler ---

func (s *Sender) OnMessage(_ context.Context, msgID int64) {
	s.ackMu.Lock()
	s.ackBuffer = append(s.ackBuffer, msgID)
	flush := len(s.ackBuffer) >= s.ackEvery
	s.ackMu.Unlock()
	if flush {
		s.FlushAcks(context.Background())
	}
}

// FlushAcks sends any buffered msg_ids as a msgs_ack service message,
// piggybacking them the way spec.md §4.4 describes ("flushed ... when an
// outbound call is about to be sent").
func (s *Sender) FlushAcks(ctx context.Context) error {
	s.ackMu.Lock()
	ids := s.ackBuffer
	s.ackBuffer = nil
	s.ackMu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	ack := tl.MsgsAck{MsgIDs: ids}
	var buf bin.Buffer
	if err := ack.Encode(&buf); err != nil {
		return err
	}
	_, err := s.conn.SendService(ctx, buf.Buf)
	return err
}

func (s *Sender) OnRPCResult(ctx context.Context, reqMsgID int64, result []byte) error {
	entry, ok := s.forget(reqMsgID)
	if !ok {
		s.log.Debug("rpc_result for unknown msg_id", zap.Int64("msg_id", reqMsgID))
		return nil
	}

	var b bin.Buffer
	b.ResetTo(result)
	id, err := b.PeekID()
	if err == nil && id == tl.IDRpcError {
		var rpcErr tl.RpcError
		if err := rpcErr.Decode(&b); err != nil {
			entry.done <- errors.Wrap(err, "decode rpc_error")
			return nil
		}
		classified := tgerr.New(int(rpcErr.ErrorCode), rpcErr.ErrorMessage)
		if dc, ok := tgerr.AsMigrate(classified); ok {
			entry.done <- &MigrateError{DC: dc}
			return nil
		}
		entry.done <- classified
		return nil
	}

	if err := entry.output.Decode(&b); err != nil {
		entry.done <- errors.Wrap(err, "decode reply")
		return nil
	}
	if s.feeder != nil {
		if carrier, ok := entry.output.(entitiesCarrier); ok {
			users, chats := carrier.Entities()
			s.feeder.Feed(users, chats)
		}
	}
	entry.done <- nil
	return nil
}

func (s *Sender) OnBadServerSalt(ctx context.Context, badMsgID int64, _ int64) error {
	// The server has already installed the corrected salt on the Conn by
	// the time this callback fires (mtproto.Conn.handleMessage calls
	// SetSalt before invoking us), so re-encoding badMsgID's cached body
	// through s.conn.Send picks up S' automatically via EncodeEnvelope —
	// the caller's Invoke never sees this happen (spec.md:150-151, §4.4).
	entry, ok := s.forget(badMsgID)
	if ok {
		s.retransmit(ctx, entry)
	}
	return nil
}

func (s *Sender) OnBadMsgNotification(ctx context.Context, badMsgID int64, _ int32, code int32) error {
	entry, ok := s.forget(badMsgID)
	if !ok {
		return nil
	}
	switch code {
	case 16, 17, 19, 32, 33, 48:
		// msg_id too old/new, container msg_id collision, seqno drift, or a
		// salt issue: all are resolved by generating a fresh msg_id/seqno
		// for the same body and resending it (spec.md §4.4).
		s.retransmit(ctx, entry)
	default:
		entry.done <- errors.Newf("rpc: fatal bad_msg_notification code %d", code)
	}
	return nil
}

func (s *Sender) OnNewSession(_ context.Context, ns mtproto.NewSession) error {
	s.log.Info("new session", zap.Int64("first_msg_id", ns.FirstMsgID), zap.Int64("server_salt", ns.ServerSalt))
	return nil
}

func (s *Sender) OnUpdates(ctx context.Context, body []byte) error {
	if s.updates == nil {
		return nil
	}
	return s.updates.HandleUpdates(ctx, body)
}

func (s *Sender) OnAck([]int64) {}

func (s *Sender) OnPong(int64, int64) {}

func (s *Sender) OnFutureSalts(int64, int32, []tl.FutureSalt) {}
