package rpc_test

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/mtcrypto"
	"github.com/meniwap/telecraftor-core/mtproto"
	"github.com/meniwap/telecraftor-core/rpc"
	"github.com/meniwap/telecraftor-core/tl"
	"github.com/meniwap/telecraftor-core/transport"
	"github.com/meniwap/telecraftor-core/transport/codec"
)

type recordUpdates struct {
	mu   sync.Mutex
	seen [][]byte
}

func (r *recordUpdates) HandleUpdates(_ context.Context, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, body)
	return nil
}

// echoReply/echoRequest stand in for a generated TL request/reply pair; the
// real schema is out of scope here (spec.md §1), only the Invoke plumbing
// is under test.
type echoReply struct{ Value string }

func (e *echoReply) Decode(b *bin.Buffer) error {
	v, err := b.String()
	if err != nil {
		return err
	}
	e.Value = v
	return nil
}

type echoRequest struct{ Value string }

func (e *echoRequest) Encode(b *bin.Buffer) error {
	b.PutString(e.Value)
	return nil
}

func testSession() mtproto.Session {
	var key mtcrypto.AuthKey
	for i := range key.Value {
		key.Value[i] = byte(i + 1)
	}
	key = mtcrypto.NewAuthKey(key.Value)
	return mtproto.Session{Key: key, Salt: 1, SessionID: 2}
}

// fakeServer drives the raw transport directly (no mtproto.Conn on this
// side), since the client's request bodies in these tests aren't
// registered TL constructors the dispatch switch would recognize.
type fakeServer struct {
	conn    transport.Conn
	session mtproto.Session
}

func (s *fakeServer) recv(ctx context.Context) (*mtproto.DecodedEnvelope, error) {
	var buf bin.Buffer
	if err := s.conn.Recv(ctx, &buf); err != nil {
		return nil, err
	}
	return mtproto.DecodeEnvelope(s.session, buf.Buf)
}

func (s *fakeServer) sendBody(ctx context.Context, msgID int64, seqNo int32, body []byte) error {
	frame, err := mtproto.EncodeEnvelope(s.session, msgID, seqNo, body)
	if err != nil {
		return err
	}
	var buf bin.Buffer
	buf.ResetTo(frame)
	return s.conn.Send(ctx, &buf)
}

func (s *fakeServer) replyRPCResult(ctx context.Context, reqMsgID int64, result []byte) error {
	r := tl.RpcResult{ReqMsgID: reqMsgID, Result: result}
	var buf bin.Buffer
	if err := r.Encode(&buf); err != nil {
		return err
	}
	return s.sendBody(ctx, reqMsgID+1000, 1, buf.Buf)
}

func (s *fakeServer) replyRPCError(ctx context.Context, reqMsgID int64, code int32, message string) error {
	rpcErr := tl.RpcError{ErrorCode: code, ErrorMessage: message}
	var errBuf bin.Buffer
	if err := rpcErr.Encode(&errBuf); err != nil {
		return err
	}
	return s.replyRPCResult(ctx, reqMsgID, errBuf.Buf)
}

func (s *fakeServer) replyBadServerSalt(ctx context.Context, reqMsgID int64, newSalt int64) error {
	bad := tl.BadServerSalt{BadMsgID: reqMsgID, BadMsgSeqNo: 1, ErrorCode: 48, NewServerSalt: newSalt}
	var buf bin.Buffer
	if err := bad.Encode(&buf); err != nil {
		return err
	}
	return s.sendBody(ctx, reqMsgID+1000, 1, buf.Buf)
}

func newClient(t *testing.T, conn net.Conn, updates rpc.UpdatesHandler) (*rpc.Sender, *mtproto.Conn, mtproto.Session) {
	t.Helper()
	session := testSession()
	sender := rpc.NewSender(updates, nil)
	mconn := mtproto.NewConn(transport.New(conn, codec.Intermediate{}), session, sender, nil)
	sender.SetConn(mconn)
	return sender, mconn, session
}

func TestSenderInvokeRoundTrip(t *testing.T) {
	leftRaw, rightRaw := net.Pipe()
	clientSender, clientConn, session := newClient(t, leftRaw, nil)
	server := &fakeServer{conn: transport.New(rightRaw, codec.Intermediate{}), session: session}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = clientConn.Recv(ctx) }()

	go func() {
		env, err := server.recv(ctx)
		require.NoError(t, err)
		var encoded bin.Buffer
		encoded.PutString("pong")
		require.NoError(t, server.replyRPCResult(ctx, env.MsgID, encoded.Buf))
	}()

	var resp echoReply
	err := clientSender.Invoke(ctx, &echoRequest{Value: "ping"}, &resp)
	require.NoError(t, err)
	require.Equal(t, "pong", resp.Value)
}

func TestSenderInvokeMigrateError(t *testing.T) {
	leftRaw, rightRaw := net.Pipe()
	clientSender, clientConn, session := newClient(t, leftRaw, nil)
	server := &fakeServer{conn: transport.New(rightRaw, codec.Intermediate{}), session: session}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = clientConn.Recv(ctx) }()

	go func() {
		env, err := server.recv(ctx)
		require.NoError(t, err)
		require.NoError(t, server.replyRPCError(ctx, env.MsgID, 303, "PHONE_MIGRATE_2"))
	}()

	var resp echoReply
	err := clientSender.Invoke(ctx, &echoRequest{Value: "ping"}, &resp)
	var migrate *rpc.MigrateError
	require.ErrorAs(t, err, &migrate)
	require.Equal(t, 2, migrate.DC)
}

func TestSenderInvokeRetransmitsOnBadServerSalt(t *testing.T) {
	leftRaw, rightRaw := net.Pipe()
	clientSender, clientConn, session := newClient(t, leftRaw, nil)
	server := &fakeServer{conn: transport.New(rightRaw, codec.Intermediate{}), session: session}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = clientConn.Recv(ctx) }()

	const correctedSalt = int64(777)
	go func() {
		// First attempt: reject with bad_server_salt carrying the corrected
		// salt. The sender must regenerate msg_id/seqno and retransmit the
		// original request automatically (spec.md:150-151, spec.md:303).
		first, err := server.recv(ctx)
		require.NoError(t, err)
		require.NoError(t, server.replyBadServerSalt(ctx, first.MsgID, correctedSalt))

		// Retransmitted attempt: reply with the real result.
		second, err := server.recv(ctx)
		require.NoError(t, err)
		require.NotEqual(t, first.MsgID, second.MsgID)
		var encoded bin.Buffer
		encoded.PutString("pong")
		require.NoError(t, server.replyRPCResult(ctx, second.MsgID, encoded.Buf))
	}()

	var resp echoReply
	err := clientSender.Invoke(ctx, &echoRequest{Value: "ping"}, &resp)
	require.NoError(t, err)
	require.Equal(t, "pong", resp.Value)
	require.Equal(t, correctedSalt, clientConn.Session().Salt)
}

func TestSenderInvokeTimeout(t *testing.T) {
	leftRaw, rightRaw := net.Pipe()
	clientSender, clientConn, session := newClient(t, leftRaw, nil)
	defer func() { _ = rightRaw.Close() }()
	_ = session
	// The server side reads (so the request gets sent) but never replies.
	go func() { _, _ = io.Copy(io.Discard, rightRaw) }()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go func() { _ = clientConn.Recv(ctx) }()

	var resp echoReply
	err := clientSender.Invoke(ctx, &echoRequest{Value: "ping"}, &resp)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSenderCloseResolvesPending(t *testing.T) {
	leftRaw, rightRaw := net.Pipe()
	clientSender, _, _ := newClient(t, leftRaw, nil)
	defer func() { _ = rightRaw.Close() }()
	// The server side reads (so the request gets sent and registered as
	// pending) but never replies.
	go func() { _, _ = io.Copy(io.Discard, rightRaw) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		var resp echoReply
		errCh <- clientSender.Invoke(ctx, &echoRequest{Value: "ping"}, &resp)
	}()

	time.Sleep(50 * time.Millisecond)
	clientSender.Close()

	err := <-errCh
	var closedErr *rpc.ConnectionClosedError
	require.ErrorAs(t, err, &closedErr)
}

func TestSenderRoutesUpdates(t *testing.T) {
	leftRaw, rightRaw := net.Pipe()
	updates := &recordUpdates{}
	_, clientConn, session := newClient(t, leftRaw, updates)
	server := &fakeServer{conn: transport.New(rightRaw, codec.Intermediate{}), session: session}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = clientConn.Recv(ctx)
		close(done)
	}()

	var buf bin.Buffer
	buf.PutID(0xabcdef01)
	buf.PutString("some update")
	require.NoError(t, server.sendBody(ctx, 42001, 1, buf.Buf))
	<-done

	updates.mu.Lock()
	defer updates.mu.Unlock()
	require.Len(t, updates.seen, 1)
}
