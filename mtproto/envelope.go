// Package mtproto implements the encrypted MTProto v2 session (spec.md
// §4.3, L2): envelope encode/decode and the Conn that drives the receive
// loop's message-kind dispatch (acks, containers, gzip, future salts).
package mtproto

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/mtcrypto"
)

// SessionError is returned for any mismatch while decoding an encrypted
// envelope: wrong auth_key_id or a msg_key that doesn't recompute
// (spec.md §7, "Session errors" — fatal for the connection).
type SessionError struct {
	Reason string
}

func (e *SessionError) Error() string { return "mtproto: session error: " + e.Reason }

// Session is the negotiated secret an encrypted Conn encodes/decodes with.
type Session struct {
	Key       mtcrypto.AuthKey
	Salt      int64
	SessionID int64
}

const minPadding = 12
const maxPadding = 1024
const blockSize = 16

// EncodeEnvelope builds one encrypted MTProto v2 message (spec.md §4.3
// steps 1-5): preamble + body + random padding, msg_key derivation, AES-IGE
// encryption, and the final auth_key_id‖msg_key‖ciphertext frame.
func EncodeEnvelope(s Session, msgID int64, seqNo int32, body []byte) ([]byte, error) {
	payload := &bin.Buffer{}
	payload.PutInt64(s.Salt)
	payload.PutInt64(s.SessionID)
	payload.PutInt64(msgID)
	payload.PutInt32(seqNo)
	payload.PutInt32(int32(len(body)))
	payload.PutRaw(body)

	pad, err := paddingFor(len(payload.Buf))
	if err != nil {
		return nil, errors.Wrap(err, "padding")
	}
	payload.PutRaw(pad)

	msgKeyLarge := mtcrypto.MessageKeyLarge(s.Key.Value, payload.Buf)
	var msgKey [16]byte
	copy(msgKey[:], msgKeyLarge[8:24])

	aesKey, aesIV := mtcrypto.DeriveAESKeyIV(s.Key.Value, msgKey, mtcrypto.Outbound)
	cipherText, err := mtcrypto.EncryptIGE(aesKey, aesIV, payload.Buf)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt")
	}

	out := &bin.Buffer{}
	out.PutRaw(s.Key.ID[:])
	out.PutRaw(msgKey[:])
	out.PutRaw(cipherText)
	return out.Buf, nil
}

func paddingFor(payloadLen int) ([]byte, error) {
	// Choose the smallest pad in [minPadding, maxPadding] that makes the
	// total length a multiple of the AES block size.
	for pad := minPadding; pad <= maxPadding; pad++ {
		if (payloadLen+pad)%blockSize == 0 {
			out := make([]byte, pad)
			if _, err := rand.Read(out); err != nil {
				return nil, err
			}
			return out, nil
		}
	}
	return nil, errors.New("no valid padding length found")
}

// DecodedEnvelope is the result of decoding one encrypted frame.
type DecodedEnvelope struct {
	Salt      int64
	SessionID int64
	MsgID     int64
	SeqNo     int32
	Body      []byte
}

// DecodeEnvelope reverses EncodeEnvelope, verifying auth_key_id and msg_key
// (spec.md §4.3, inbound verification).
func DecodeEnvelope(s Session, frame []byte) (*DecodedEnvelope, error) {
	if len(frame) < 8+16 {
		return nil, &SessionError{Reason: "frame too short"}
	}
	authKeyID := frame[:8]
	msgKey := frame[8:24]
	cipherText := frame[24:]

	if subtle.ConstantTimeCompare(authKeyID, s.Key.ID[:]) != 1 {
		return nil, &SessionError{Reason: "auth_key_id mismatch"}
	}
	if len(cipherText)%blockSize != 0 {
		return nil, &SessionError{Reason: "ciphertext not block-aligned"}
	}

	var msgKeyArr [16]byte
	copy(msgKeyArr[:], msgKey)
	aesKey, aesIV := mtcrypto.DeriveAESKeyIV(s.Key.Value, msgKeyArr, mtcrypto.Inbound)
	payload, err := mtcrypto.DecryptIGE(aesKey, aesIV, cipherText)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt")
	}

	msgKeyLarge := mtcrypto.MessageKeyLarge(s.Key.Value, payload)
	var wantMsgKey [16]byte
	copy(wantMsgKey[:], msgKeyLarge[8:24])
	if subtle.ConstantTimeCompare(wantMsgKey[:], msgKey) != 1 {
		return nil, &SessionError{Reason: "msg_key mismatch"}
	}

	b := &bin.Buffer{Buf: payload}
	salt, err := b.Int64()
	if err != nil {
		return nil, &SessionError{Reason: "truncated salt"}
	}
	sessionID, err := b.Int64()
	if err != nil {
		return nil, &SessionError{Reason: "truncated session_id"}
	}
	msgID, err := b.Int64()
	if err != nil {
		return nil, &SessionError{Reason: "truncated msg_id"}
	}
	seqNo, err := b.Int32()
	if err != nil {
		return nil, &SessionError{Reason: "truncated seqno"}
	}
	length, err := b.Int32()
	if err != nil {
		return nil, &SessionError{Reason: "truncated length"}
	}
	if int(length) < 0 || int(length) > len(b.Buf) {
		return nil, &SessionError{Reason: "declared length exceeds plaintext"}
	}
	body, err := b.Raw(int(length))
	if err != nil {
		return nil, &SessionError{Reason: "truncated body"}
	}

	return &DecodedEnvelope{
		Salt:      salt,
		SessionID: sessionID,
		MsgID:     msgID,
		SeqNo:     seqNo,
		Body:      body,
	}, nil
}
