package proto_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/proto"
)

func TestMessageIDGenMonotonic(t *testing.T) {
	now := time.Unix(1000, 0)
	gen := proto.NewMessageIDGen(func() time.Time { return now })

	var last proto.MessageID
	for i := 0; i < 1000; i++ {
		id := gen.New()
		require.Greater(t, int64(id), int64(last))
		require.Zero(t, int64(id)%4)
		require.Equal(t, proto.MessageFromClient, id.Type())
		last = id
	}
}

func TestMessageIDGenAdvancesClock(t *testing.T) {
	now := time.Unix(1000, 0)
	gen := proto.NewMessageIDGen(func() time.Time { return now })
	first := gen.New()

	now = now.Add(time.Hour)
	second := gen.New()
	require.Greater(t, int64(second), int64(first))
}

func TestMessageIDTimeRoundTrips(t *testing.T) {
	now := time.Unix(1717000000, 0)
	id := proto.NewMessageID(now, proto.MessageFromClient)
	require.Equal(t, now.Unix(), id.Time().Unix())
}

func TestMessageIDGenTimeMatchesClock(t *testing.T) {
	now := time.Unix(1000, 0)
	gen := proto.NewMessageIDGen(func() time.Time { return now })
	id := gen.New()
	require.Equal(t, now.Unix(), id.Time().Unix())
}

func TestUnencryptedMessageRoundtrip(t *testing.T) {
	msg := proto.UnencryptedMessage{MessageID: 42, MessageData: []byte("hello")}
	var b bin.Buffer
	require.NoError(t, msg.Encode(&b))

	var got proto.UnencryptedMessage
	require.NoError(t, got.Decode(&b))
	require.Equal(t, msg, got)
}

func TestMessageContainerRoundtrip(t *testing.T) {
	c := proto.MessageContainer{Messages: []proto.Message{
		{MsgID: 1, SeqNo: 1, Body: []byte("a")},
		{MsgID: 2, SeqNo: 3, Body: []byte("bb")},
	}}
	var b bin.Buffer
	require.NoError(t, c.Encode(&b))

	id, err := b.PeekID()
	require.NoError(t, err)
	require.Equal(t, proto.IDMessageContainer, id)

	var got proto.MessageContainer
	require.NoError(t, got.Decode(&b))
	require.Len(t, got.Messages, 2)
	require.Equal(t, []byte("a"), got.Messages[0].Body)
	require.Equal(t, []byte("bb"), got.Messages[1].Body)
}

func TestGZIPRoundtrip(t *testing.T) {
	g := proto.GZIP{Data: []byte("compressed-bytes")}
	var b bin.Buffer
	require.NoError(t, g.Encode(&b))

	var got proto.GZIP
	require.NoError(t, got.Decode(&b))
	require.Equal(t, g.Data, got.Data)
}
