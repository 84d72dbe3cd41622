package transport_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/transport"
	"github.com/meniwap/telecraftor-core/transport/codec"
)

func TestConnectionSendRecv(t *testing.T) {
	leftRaw, rightRaw := net.Pipe()
	left := transport.New(leftRaw, codec.Intermediate{})
	right := transport.New(rightRaw, codec.Intermediate{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	payload := bytes.Repeat([]byte{1, 2, 3, 4}, 50)
	done := make(chan []byte)
	go func() {
		var b bin.Buffer
		if err := right.Recv(ctx, &b); err != nil {
			t.Error(err)
			return
		}
		done <- b.Buf
	}()

	require.NoError(t, left.Send(ctx, &bin.Buffer{Buf: payload}))
	require.Equal(t, payload, <-done)
}

func TestConnectionCloseReportsDistinctError(t *testing.T) {
	leftRaw, rightRaw := net.Pipe()
	left := transport.New(leftRaw, codec.Intermediate{})
	defer rightRaw.Close()

	require.NoError(t, left.Close())

	var b bin.Buffer
	err := left.Send(context.Background(), &b)
	require.ErrorIs(t, err, transport.ErrClosed)
}
