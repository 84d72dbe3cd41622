package tl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/tl"
)

func TestRpcResultRoundtrip(t *testing.T) {
	r := tl.RpcResult{ReqMsgID: 123, Result: []byte("payload")}
	var b bin.Buffer
	require.NoError(t, r.Encode(&b))

	var got tl.RpcResult
	require.NoError(t, got.Decode(&b))
	require.Equal(t, r, got)
}

func TestRpcErrorRoundtrip(t *testing.T) {
	e := tl.RpcError{ErrorCode: 420, ErrorMessage: "FLOOD_WAIT_5"}
	var b bin.Buffer
	require.NoError(t, e.Encode(&b))

	var got tl.RpcError
	require.NoError(t, got.Decode(&b))
	require.Equal(t, e, got)
}

func TestBadServerSaltRoundtrip(t *testing.T) {
	s := tl.BadServerSalt{BadMsgID: 1, BadMsgSeqNo: 2, ErrorCode: 48, NewServerSalt: 99}
	var b bin.Buffer
	require.NoError(t, s.Encode(&b))

	var got tl.BadServerSalt
	require.NoError(t, got.Decode(&b))
	require.Equal(t, s, got)
}

func TestMsgsAckRoundtrip(t *testing.T) {
	a := tl.MsgsAck{MsgIDs: []int64{1, 2, 3}}
	var b bin.Buffer
	require.NoError(t, a.Encode(&b))

	var got tl.MsgsAck
	require.NoError(t, got.Decode(&b))
	require.Equal(t, a, got)
}

func TestFutureSaltsRoundtrip(t *testing.T) {
	f := tl.FutureSalts{ReqMsgID: 1, Now: 100, Salts: []tl.FutureSalt{
		{ValidSince: 100, ValidUntil: 200, Salt: 1},
		{ValidSince: 200, ValidUntil: 300, Salt: 2},
	}}
	var b bin.Buffer
	require.NoError(t, f.Encode(&b))

	var got tl.FutureSalts
	require.NoError(t, got.Decode(&b))
	require.Equal(t, f, got)
}
