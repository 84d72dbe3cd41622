package mtproto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/mtcrypto"
	"github.com/meniwap/telecraftor-core/mtproto"
)

func testSession(t *testing.T) mtproto.Session {
	t.Helper()
	var keyValue [256]byte
	for i := range keyValue {
		keyValue[i] = byte(i)
	}
	return mtproto.Session{
		Key:       mtcrypto.NewAuthKey(keyValue),
		Salt:      0x0102030405060708,
		SessionID: 0x1122334455667788,
	}
}

func TestEnvelopeRoundtrip(t *testing.T) {
	s := testSession(t)
	bodies := [][]byte{
		[]byte("short"),
		make([]byte, 1000),
		{},
	}
	for _, body := range bodies {
		frame, err := mtproto.EncodeEnvelope(s, 12345, 1, body)
		require.NoError(t, err)

		decoded, err := mtproto.DecodeEnvelope(s, frame)
		require.NoError(t, err)
		require.Equal(t, body, decoded.Body)
		require.Equal(t, int64(12345), decoded.MsgID)
		require.Equal(t, s.Salt, decoded.Salt)
		require.Equal(t, s.SessionID, decoded.SessionID)
	}
}

func TestEnvelopeRejectsWrongAuthKeyID(t *testing.T) {
	s := testSession(t)
	frame, err := mtproto.EncodeEnvelope(s, 1, 1, []byte("x"))
	require.NoError(t, err)

	other := s
	other.Key.ID[0] ^= 0xff
	_, err = mtproto.DecodeEnvelope(other, frame)
	require.Error(t, err)
}

func TestEnvelopeRejectsTamperedCiphertext(t *testing.T) {
	s := testSession(t)
	frame, err := mtproto.EncodeEnvelope(s, 1, 1, []byte("hello world"))
	require.NoError(t, err)

	frame[len(frame)-1] ^= 0xff
	_, err = mtproto.DecodeEnvelope(s, frame)
	require.Error(t, err)
}
