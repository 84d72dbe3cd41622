// Package mtcrypto implements MTProto's cryptographic primitives: the
// unencrypted-handshake KDFs, RSA-for-MTProto encryption, and the AES-256-IGE
// encrypted envelope used by every message once an auth key exists.
package mtcrypto

import "crypto/sha1" //nolint:gosec // mandated by the MTProto wire format

// AuthKey is the 2048-bit shared secret negotiated by the DH handshake
// (spec.md §3, "Session record").
type AuthKey struct {
	Value [256]byte
	ID    [8]byte
}

// NewAuthKey computes the AuthKey's ID from its value, per
// "auth_key_id = last 8 bytes of SHA1(auth_key)".
func NewAuthKey(value [256]byte) AuthKey {
	return AuthKey{Value: value, ID: authKeyID(value[:])}
}

func authKeyID(key []byte) [8]byte {
	h := sha1.Sum(key) //nolint:gosec
	var id [8]byte
	copy(id[:], h[12:20])
	return id
}

// Zero reports whether the key is the zero value (never negotiated, or
// invalidated by logout per SPEC_FULL.md §4.7).
func (k AuthKey) Zero() bool {
	for _, b := range k.Value {
		if b != 0 {
			return false
		}
	}
	return true
}
