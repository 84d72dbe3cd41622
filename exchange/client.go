// Package exchange implements the unencrypted key-exchange handshake
// (spec.md §4.2, L1): req_pq_multi through set_client_DH_params, producing
// the auth_key and server_salt layer L2 encrypts under.
package exchange

import (
	"context"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // mandated by MTProto
	"math/big"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/mtcrypto"
	"github.com/meniwap/telecraftor-core/proto"
	"github.com/meniwap/telecraftor-core/transport"
)

// HandshakeError wraps any failure during the handshake; spec.md §7 treats
// all of these as fatal and not retried, since they indicate a
// configuration or protocol-compatibility problem rather than a transient
// condition.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string { return "exchange: handshake failed: " + e.Reason }

// Result is what a successful handshake hands to layer L2.
type Result struct {
	AuthKey     mtcrypto.AuthKey
	ServerSalt  int64
	ServerTime  int32
	Nonce       [16]byte
	ServerNonce [16]byte
}

// ClientExchange runs the 8-step handshake over an already-connected
// transport.Conn (spec.md §4.2). rsaKeys is the caller's set of known
// server RSA public keys, keyed by fingerprint.
func ClientExchange(ctx context.Context, t transport.Conn, rsaKeys []mtcrypto.PublicKey, ids *proto.IDGen, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}

	nonce, err := randomInt128()
	if err != nil {
		return nil, errors.Wrap(err, "nonce")
	}

	resPQ, err := stepReqPQMulti(ctx, t, ids, nonce)
	if err != nil {
		return nil, err
	}
	if resPQ.Nonce != nonce {
		return nil, &HandshakeError{Reason: "resPQ.nonce mismatch"}
	}

	pqInt := new(big.Int).SetBytes(resPQ.PQ)
	p, q, err := FactorizePQ(pqInt)
	if err != nil {
		return nil, errors.Wrap(err, "factorize pq")
	}
	log.Debug("factored pq", zap.Stringer("p", p), zap.Stringer("q", q))

	key, ok := selectFingerprint(rsaKeys, resPQ.ServerPublicKeyFingerprints)
	if !ok {
		return nil, &HandshakeError{Reason: "no known RSA key matches server fingerprints"}
	}

	var newNonce [32]byte
	if _, err := rand.Read(newNonce[:]); err != nil {
		return nil, errors.Wrap(err, "new_nonce")
	}

	inner := PQInnerData{
		PQ:          resPQ.PQ,
		P:           p.Bytes(),
		Q:           q.Bytes(),
		Nonce:       nonce,
		ServerNonce: resPQ.ServerNonce,
		NewNonce:    newNonce,
	}
	var innerBuf bin.Buffer
	if err := inner.Encode(&innerBuf); err != nil {
		return nil, errors.Wrap(err, "encode p_q_inner_data")
	}
	encryptedInner, err := mtcrypto.EncryptHashedRand(innerBuf.Buf, key.Key)
	if err != nil {
		return nil, errors.Wrap(err, "rsa encrypt p_q_inner_data")
	}

	dhParams, err := stepReqDHParams(ctx, t, ids, ReqDHParams{
		Nonce:                nonce,
		ServerNonce:          resPQ.ServerNonce,
		P:                    p.Bytes(),
		Q:                    q.Bytes(),
		PublicKeyFingerprint: int64(key.Fingerprint),
		EncryptedData:        encryptedInner,
	})
	if err != nil {
		return nil, err
	}
	if dhParams.Nonce != nonce || dhParams.ServerNonce != resPQ.ServerNonce {
		return nil, &HandshakeError{Reason: "server_DH_params_ok nonce mismatch"}
	}

	serverInner, err := decryptServerDHInnerData(dhParams.EncryptedAnswer, newNonce, resPQ.ServerNonce)
	if err != nil {
		return nil, err
	}
	if serverInner.Nonce != nonce || serverInner.ServerNonce != resPQ.ServerNonce {
		return nil, &HandshakeError{Reason: "server_DH_inner_data nonce mismatch"}
	}

	dh, err := computeDH(serverInner.G, serverInner.DHPrime, serverInner.GA)
	if err != nil {
		return nil, errors.Wrap(err, "compute dh")
	}

	clientInner := ClientDHInnerData{
		Nonce:       nonce,
		ServerNonce: resPQ.ServerNonce,
		RetryID:     0,
		GB:          dh.gB,
	}
	var clientInnerBuf bin.Buffer
	if err := clientInner.Encode(&clientInnerBuf); err != nil {
		return nil, errors.Wrap(err, "encode client_DH_inner_data")
	}
	tmpKey, tmpIV := mtcrypto.TmpAESKeyIV(newNonce, resPQ.ServerNonce)
	clientHash := sha1.Sum(clientInnerBuf.Buf) //nolint:gosec // mandated by MTProto
	plain := append(append([]byte{}, clientHash[:]...), clientInnerBuf.Buf...)
	encryptedClientData, err := encryptTemp(tmpKey, tmpIV, plain)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt client_DH_inner_data")
	}

	answer, err := stepSetClientDHParams(ctx, t, ids, SetClientDHParams{
		Nonce:         nonce,
		ServerNonce:   resPQ.ServerNonce,
		EncryptedData: encryptedClientData,
	})
	if err != nil {
		return nil, err
	}

	if err := verifyDHGenAnswer(answer, newNonce, dh.authKey.Value[:]); err != nil {
		return nil, err
	}

	salt := mtcrypto.ServerSalt(newNonce, resPQ.ServerNonce)
	var saltInt int64
	for i := 0; i < 8; i++ {
		saltInt |= int64(salt[i]) << (8 * i)
	}

	return &Result{
		AuthKey:     dh.authKey,
		ServerSalt:  saltInt,
		ServerTime:  serverInner.ServerTime,
		Nonce:       nonce,
		ServerNonce: resPQ.ServerNonce,
	}, nil
}

func randomInt128() ([16]byte, error) {
	var out [16]byte
	_, err := rand.Read(out[:])
	return out, err
}

func selectFingerprint(known []mtcrypto.PublicKey, offered []int64) (mtcrypto.PublicKey, bool) {
	asUint := make([]uint64, len(offered))
	for i, fp := range offered {
		asUint[i] = uint64(fp)
	}
	return mtcrypto.SelectFingerprint(known, asUint)
}

func sendUnencrypted(ctx context.Context, t transport.Conn, ids *proto.IDGen, body []byte) error {
	msg := proto.UnencryptedMessage{MessageID: int64(ids.New()), MessageData: body}
	var b bin.Buffer
	if err := msg.Encode(&b); err != nil {
		return errors.Wrap(err, "encode unencrypted message")
	}
	return t.Send(ctx, &b)
}

// recvUnencrypted reads frames until it finds one that parses as a
// plausible unencrypted envelope, tolerating any interleaved quick-ack or
// otherwise undersized frames (spec.md §4.1, §4.2).
func recvUnencrypted(ctx context.Context, t transport.Conn) ([]byte, error) {
	const minEnvelopeLen = 8 + 4 // msg_id + length prefix
	const maxAttempts = 128
	for i := 0; i < maxAttempts; i++ {
		var b bin.Buffer
		if err := t.Recv(ctx, &b); err != nil {
			return nil, errors.Wrap(err, "transport recv")
		}
		if len(b.Buf) < minEnvelopeLen {
			continue
		}
		var msg proto.UnencryptedMessage
		if err := msg.Decode(&b); err != nil {
			continue
		}
		return msg.MessageData, nil
	}
	return nil, &HandshakeError{Reason: "no valid unencrypted response received"}
}

func stepReqPQMulti(ctx context.Context, t transport.Conn, ids *proto.IDGen, nonce [16]byte) (*ResPQ, error) {
	req := ReqPQMulti{Nonce: nonce}
	var buf bin.Buffer
	if err := req.Encode(&buf); err != nil {
		return nil, errors.Wrap(err, "encode req_pq_multi")
	}
	if err := sendUnencrypted(ctx, t, ids, buf.Buf); err != nil {
		return nil, errors.Wrap(err, "send req_pq_multi")
	}
	body, err := recvUnencrypted(ctx, t)
	if err != nil {
		return nil, err
	}
	var resp bin.Buffer
	resp.ResetTo(body)
	var resPQ ResPQ
	if err := resPQ.Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "decode resPQ")
	}
	return &resPQ, nil
}

func stepReqDHParams(ctx context.Context, t transport.Conn, ids *proto.IDGen, req ReqDHParams) (*ServerDHParamsOk, error) {
	var buf bin.Buffer
	if err := req.Encode(&buf); err != nil {
		return nil, errors.Wrap(err, "encode req_DH_params")
	}
	if err := sendUnencrypted(ctx, t, ids, buf.Buf); err != nil {
		return nil, errors.Wrap(err, "send req_DH_params")
	}
	body, err := recvUnencrypted(ctx, t)
	if err != nil {
		return nil, err
	}
	var resp bin.Buffer
	resp.ResetTo(body)
	id, err := resp.ConsumeID()
	if err != nil {
		return nil, errors.Wrap(err, "peek server_DH_params constructor")
	}
	switch id {
	case idServerDHParamsOk:
		var ok ServerDHParamsOk
		if err := ok.Decode(&resp); err != nil {
			return nil, errors.Wrap(err, "decode server_DH_params_ok")
		}
		return &ok, nil
	case idServerDHParamsFail:
		return nil, &HandshakeError{Reason: "server returned server_DH_params_fail"}
	default:
		return nil, &HandshakeError{Reason: "unexpected response to req_DH_params"}
	}
}

func stepSetClientDHParams(ctx context.Context, t transport.Conn, ids *proto.IDGen, req SetClientDHParams) (body []byte, err error) {
	var buf bin.Buffer
	if err := req.Encode(&buf); err != nil {
		return nil, errors.Wrap(err, "encode set_client_DH_params")
	}
	if err := sendUnencrypted(ctx, t, ids, buf.Buf); err != nil {
		return nil, errors.Wrap(err, "send set_client_DH_params")
	}
	return recvUnencrypted(ctx, t)
}

func decryptServerDHInnerData(encryptedAnswer []byte, newNonce [32]byte, serverNonce [16]byte) (*ServerDHInnerData, error) {
	key, iv := mtcrypto.TmpAESKeyIV(newNonce, serverNonce)
	plain, err := mtcrypto.DecryptIGE(key, iv, encryptedAnswer)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt server_DH_inner_data")
	}
	if len(plain) < 20 {
		return nil, &HandshakeError{Reason: "decrypted server_DH_inner_data too short"}
	}
	var b bin.Buffer
	b.ResetTo(plain[20:])
	var inner ServerDHInnerData
	if err := inner.Decode(&b); err != nil {
		return nil, errors.Wrap(err, "decode server_DH_inner_data")
	}
	return &inner, nil
}

func encryptTemp(key, iv [32]byte, plain []byte) ([]byte, error) {
	padded := make([]byte, len(plain))
	copy(padded, plain)
	if pad := (16 - len(padded)%16) % 16; pad != 0 {
		extra := make([]byte, pad)
		if _, err := rand.Read(extra); err != nil {
			return nil, err
		}
		padded = append(padded, extra...)
	}
	return mtcrypto.EncryptIGE(key, iv, padded)
}

func verifyDHGenAnswer(body []byte, newNonce [32]byte, authKey []byte) error {
	var b bin.Buffer
	b.ResetTo(body)
	id, err := b.ConsumeID()
	if err != nil {
		return errors.Wrap(err, "peek dh_gen answer constructor")
	}
	switch id {
	case idDHGenOk:
		var ans DHGenOk
		if err := ans.Decode(&b); err != nil {
			return errors.Wrap(err, "decode dh_gen_ok")
		}
		expected, err := mtcrypto.NewNonceHash(newNonce, authKey, 1)
		if err != nil {
			return err
		}
		if expected != ans.NewNonceHash1 {
			return &HandshakeError{Reason: "dh_gen_ok new_nonce_hash1 mismatch"}
		}
		return nil
	case idDHGenRetry:
		var ans DHGenRetry
		if err := ans.Decode(&b); err != nil {
			return errors.Wrap(err, "decode dh_gen_retry")
		}
		expected, err := mtcrypto.NewNonceHash(newNonce, authKey, 2)
		if err != nil {
			return err
		}
		if expected != ans.NewNonceHash2 {
			return &HandshakeError{Reason: "dh_gen_retry new_nonce_hash2 mismatch"}
		}
		return &HandshakeError{Reason: "server requested dh_gen_retry"}
	case idDHGenFail:
		var ans DHGenFail
		if err := ans.Decode(&b); err != nil {
			return errors.Wrap(err, "decode dh_gen_fail")
		}
		expected, err := mtcrypto.NewNonceHash(newNonce, authKey, 3)
		if err != nil {
			return err
		}
		if expected != ans.NewNonceHash3 {
			return &HandshakeError{Reason: "dh_gen_fail new_nonce_hash3 mismatch"}
		}
		return &HandshakeError{Reason: "server returned dh_gen_fail"}
	default:
		return &HandshakeError{Reason: "unexpected response to set_client_DH_params"}
	}
}
