package mtcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // mandated by MTProto
	"math/big"

	"github.com/go-faster/errors"
)

// PublicKey is a server RSA key as distributed out-of-band (spec.md §4.2
// step 3: "the first fingerprint for which the caller supplied an RSA
// public key").
type PublicKey struct {
	Fingerprint uint64
	Key         *rsa.PublicKey
}

// SelectFingerprint returns the first known key matching one of the
// server-offered fingerprints, preserving the server's preference order.
func SelectFingerprint(known []PublicKey, offered []uint64) (PublicKey, bool) {
	byFP := make(map[uint64]PublicKey, len(known))
	for _, k := range known {
		byFP[k.Fingerprint] = k
	}
	for _, fp := range offered {
		if k, ok := byFP[fp]; ok {
			return k, true
		}
	}
	return PublicKey{}, false
}

// EncryptHashed implements MTProto's RSA-with-SHA1-padding scheme used for
// req_DH_params (spec.md §4.2 step 4). It is not PKCS#1 v1.5: the block
// `sha1(data) ‖ data` is right-aligned in a modulus-sized buffer whose
// leading bytes are random padding with the first byte forced to zero,
// then encrypted with raw RSA exponentiation (no OAEP/PKCS1
// library applies here since the padding scheme is MTProto-specific).
func EncryptHashed(data []byte, key *rsa.PublicKey, randSource interface {
	Read(p []byte) (int, error)
}) ([]byte, error) {
	keySize := (key.N.BitLen() + 7) / 8
	if keySize != 256 {
		return nil, errors.Newf("unexpected RSA modulus size: %d bytes", keySize)
	}

	hash := sha1.Sum(data) //nolint:gosec
	block := make([]byte, 0, len(hash)+len(data))
	block = append(block, hash[:]...)
	block = append(block, data...)

	const maxPlain = 255 // keySize - 1, leaves room for the leading zero byte
	if len(block) > maxPlain {
		return nil, errors.New("data too large for RSA padding")
	}
	padded := make([]byte, keySize)
	copy(padded[keySize-len(block):], block)
	if _, err := randSource.Read(padded[:keySize-len(block)]); err != nil {
		return nil, errors.Wrap(err, "read random padding")
	}
	// First byte must stay within the modulus; MTProto requires it be 0.
	padded[0] = 0

	m := new(big.Int).SetBytes(padded)
	if m.Cmp(key.N) >= 0 {
		return nil, errors.New("padded block exceeds RSA modulus")
	}
	e := big.NewInt(int64(key.E))
	c := new(big.Int).Exp(m, e, key.N)

	out := make([]byte, keySize)
	c.FillBytes(out)
	return out, nil
}

// EncryptHashedRand is EncryptHashed using crypto/rand.Reader.
func EncryptHashedRand(data []byte, key *rsa.PublicKey) ([]byte, error) {
	return EncryptHashed(data, key, rand.Reader)
}
