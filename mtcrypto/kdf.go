package mtcrypto

import (
	"crypto/sha1" //nolint:gosec // mandated by MTProto
	"crypto/sha256"

	"github.com/go-faster/errors"
	"github.com/go-faster/xor"
)

// TmpAESKeyIV computes the temporary AES-256 key/iv used during the
// handshake, before an auth_key exists. Spec.md §4.2 KDF list, matches
// original_source/src/telecraft/mtproto/auth/kdf.py byte-for-byte.
func TmpAESKeyIV(newNonce [32]byte, serverNonce [16]byte) (key [32]byte, iv [32]byte) {
	h1 := sha1.Sum(append(append([]byte{}, newNonce[:]...), serverNonce[:]...))    //nolint:gosec
	h2 := sha1.Sum(append(append([]byte{}, serverNonce[:]...), newNonce[:]...))     //nolint:gosec
	h3 := sha1.Sum(append(append([]byte{}, newNonce[:]...), newNonce[:]...))        //nolint:gosec

	copy(key[:20], h1[:])
	copy(key[20:32], h2[:12])

	copy(iv[:8], h2[12:20])
	copy(iv[8:28], h3[:])
	copy(iv[28:32], newNonce[:4])
	return key, iv
}

// ServerSalt derives the initial server_salt from the two nonces:
// xor(new_nonce[:8], server_nonce[:8]) read as little-endian.
func ServerSalt(newNonce [32]byte, serverNonce [16]byte) (salt [8]byte) {
	xor.Bytes(salt[:], newNonce[:8], serverNonce[:8])
	return salt
}

// AuthKeyAuxHash returns sha1(auth_key)[:8], used to build new_nonce_hashN.
func AuthKeyAuxHash(authKey []byte) (h [8]byte) {
	full := sha1.Sum(authKey) //nolint:gosec
	copy(h[:], full[:8])
	return h
}

// NewNonceHash computes new_nonce_hash{1,2,3} = sha1(new_nonce ‖ [n] ‖
// auth_key_aux_hash)[4:20], the value dh_gen_ok/retry/fail carry.
func NewNonceHash(newNonce [32]byte, authKey []byte, n byte) ([16]byte, error) {
	if n != 1 && n != 2 && n != 3 {
		return [16]byte{}, errors.Newf("new_nonce_hash: n must be 1, 2 or 3, got %d", n)
	}
	aux := AuthKeyAuxHash(authKey)
	buf := make([]byte, 0, 32+1+8)
	buf = append(buf, newNonce[:]...)
	buf = append(buf, n)
	buf = append(buf, aux[:]...)
	full := sha1.Sum(buf) //nolint:gosec
	var out [16]byte
	copy(out[:], full[4:20])
	return out, nil
}

// MessageKeyLarge computes SHA256(auth_key[88:120] ‖ payload), the input to
// the MTProto v2 msg_key derivation (spec.md §4.3 step 2).
func MessageKeyLarge(authKey [256]byte, payload []byte) [32]byte {
	buf := make([]byte, 0, 32+len(payload))
	buf = append(buf, authKey[88:120]...)
	buf = append(buf, payload...)
	return sha256.Sum256(buf)
}

// KeyIVSide selects which side of the envelope aes_key/aes_iv is being
// derived for: client-to-server (x=0) or server-to-client (x=8).
type KeyIVSide int

const (
	// Outbound is used when this process is the message's sender.
	Outbound KeyIVSide = 0
	// Inbound is used when this process is the message's receiver.
	Inbound KeyIVSide = 8
)

// DeriveAESKeyIV implements the MTProto v2 key/iv derivation (spec.md
// §4.3 step 3).
func DeriveAESKeyIV(authKey [256]byte, msgKey [16]byte, side KeyIVSide) (key [32]byte, iv [32]byte) {
	x := int(side)

	shaA := sha256.Sum256(concat(msgKey[:], authKey[x:x+36]))
	shaB := sha256.Sum256(concat(authKey[x+40:x+76], msgKey[:]))

	copy(key[0:8], shaA[0:8])
	copy(key[8:24], shaB[8:24])
	copy(key[24:32], shaA[24:32])

	copy(iv[0:8], shaB[0:8])
	copy(iv[8:24], shaA[8:24])
	copy(iv[24:32], shaB[24:32])
	return key, iv
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
