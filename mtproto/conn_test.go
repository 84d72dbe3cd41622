package mtproto_test

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/mtcrypto"
	"github.com/meniwap/telecraftor-core/mtproto"
	"github.com/meniwap/telecraftor-core/proto"
	"github.com/meniwap/telecraftor-core/tl"
	"github.com/meniwap/telecraftor-core/transport"
	"github.com/meniwap/telecraftor-core/transport/codec"
)

type recordHandler struct {
	mu         sync.Mutex
	rpcResults map[int64][]byte
	newSession []mtproto.NewSession
	badSalts   []int64
	acks       [][]int64
	updates    [][]byte
}

func newRecordHandler() *recordHandler {
	return &recordHandler{rpcResults: make(map[int64][]byte)}
}

func (h *recordHandler) OnMessage(context.Context, int64) {}

func (h *recordHandler) OnRPCResult(_ context.Context, reqMsgID int64, result []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rpcResults[reqMsgID] = result
	return nil
}

func (h *recordHandler) OnBadServerSalt(_ context.Context, badMsgID int64, _ int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.badSalts = append(h.badSalts, badMsgID)
	return nil
}

func (h *recordHandler) OnBadMsgNotification(context.Context, int64, int32, int32) error {
	return nil
}

func (h *recordHandler) OnNewSession(_ context.Context, s mtproto.NewSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.newSession = append(h.newSession, s)
	return nil
}

func (h *recordHandler) OnUpdates(_ context.Context, body []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, body)
	return nil
}

func (h *recordHandler) OnAck(msgIDs []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acks = append(h.acks, msgIDs)
}

func (h *recordHandler) OnPong(int64, int64) {}

func (h *recordHandler) OnFutureSalts(int64, int32, []tl.FutureSalt) {}

func testSession() mtproto.Session {
	var key mtcrypto.AuthKey
	for i := range key.Value {
		key.Value[i] = byte(i)
	}
	key = mtcrypto.NewAuthKey(key.Value)
	return mtproto.Session{Key: key, Salt: 0x0102030405060708, SessionID: 0x1122334455667788}
}

func newPair(t *testing.T, handler mtproto.Handler) (*mtproto.Conn, *mtproto.Conn) {
	t.Helper()
	leftRaw, rightRaw := net.Pipe()
	left := transport.New(leftRaw, codec.Intermediate{})
	right := transport.New(rightRaw, codec.Intermediate{})
	session := testSession()
	return mtproto.NewConn(left, session, handler, nil), mtproto.NewConn(right, session, handler, nil)
}

func withTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func TestConnSendRecvRPCResult(t *testing.T) {
	handler := newRecordHandler()
	a, b := newPair(t, handler)
	ctx, cancel := withTimeout(t)
	defer cancel()

	var result tl.RpcResult
	result.ReqMsgID = 42
	result.Result = []byte("hello")
	var buf bin.Buffer
	require.NoError(t, result.Encode(&buf))

	errCh := make(chan error, 1)
	go func() { errCh <- b.Recv(ctx) }()

	_, err := a.Send(ctx, buf.Buf)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	require.Equal(t, []byte("hello"), handler.rpcResults[42])
}

func TestConnGZIPUnwrap(t *testing.T) {
	handler := newRecordHandler()
	a, b := newPair(t, handler)
	ctx, cancel := withTimeout(t)
	defer cancel()

	var inner tl.RpcResult
	inner.ReqMsgID = 7
	inner.Result = []byte("payload")
	var innerBuf bin.Buffer
	require.NoError(t, inner.Encode(&innerBuf))

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, err := gw.Write(innerBuf.Buf)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	wrapper := proto.GZIP{Data: gzBuf.Bytes()}
	var outer bin.Buffer
	require.NoError(t, wrapper.Encode(&outer))

	errCh := make(chan error, 1)
	go func() { errCh <- b.Recv(ctx) }()

	_, err = a.Send(ctx, outer.Buf)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	require.Equal(t, []byte("payload"), handler.rpcResults[7])
}

func TestConnContainerUnwrap(t *testing.T) {
	handler := newRecordHandler()
	a, b := newPair(t, handler)
	ctx, cancel := withTimeout(t)
	defer cancel()

	msg := func(id int64, body []byte) proto.Message {
		return proto.Message{MsgID: id, SeqNo: 1, Bytes: int32(len(body)), Body: body}
	}

	var r1, r2 tl.RpcResult
	r1.ReqMsgID, r1.Result = 1, []byte("a")
	r2.ReqMsgID, r2.Result = 2, []byte("b")
	var b1, b2 bin.Buffer
	require.NoError(t, r1.Encode(&b1))
	require.NoError(t, r2.Encode(&b2))

	container := proto.MessageContainer{Messages: []proto.Message{msg(1, b1.Buf), msg(2, b2.Buf)}}
	var outer bin.Buffer
	require.NoError(t, container.Encode(&outer))

	errCh := make(chan error, 1)
	go func() { errCh <- b.Recv(ctx) }()

	_, err := a.Send(ctx, outer.Buf)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	require.Equal(t, []byte("a"), handler.rpcResults[1])
	require.Equal(t, []byte("b"), handler.rpcResults[2])
}

func TestConnAckDispatch(t *testing.T) {
	handler := newRecordHandler()
	a, b := newPair(t, handler)
	ctx, cancel := withTimeout(t)
	defer cancel()

	ack := tl.MsgsAck{MsgIDs: []int64{10, 20}}
	var buf bin.Buffer
	require.NoError(t, ack.Encode(&buf))

	errCh := make(chan error, 1)
	go func() { errCh <- b.Recv(ctx) }()

	_, err := a.SendService(ctx, buf.Buf)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	require.Equal(t, [][]int64{{10, 20}}, handler.acks)
}

func TestConnUnknownConstructorRoutesToUpdates(t *testing.T) {
	handler := newRecordHandler()
	a, b := newPair(t, handler)
	ctx, cancel := withTimeout(t)
	defer cancel()

	var buf bin.Buffer
	buf.PutID(0xdeadbeef)
	buf.PutString("whatever")

	errCh := make(chan error, 1)
	go func() { errCh <- b.Recv(ctx) }()

	_, err := a.Send(ctx, buf.Buf)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	require.Len(t, handler.updates, 1)
}
