package exchange

import (
	"crypto/rand"
	"math/big"

	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/mtcrypto"
)

// ErrInvalidDHParams is returned when the server's g/dh_prime/g_a fail the
// sanity checks spec.md §4.2 step 3 requires before using them.
var ErrInvalidDHParams = errors.New("exchange: invalid DH parameters")

// dhResult is the client side of Diffie-Hellman: the computed auth_key plus
// g_b to report back to the server (spec.md §4.2 step 4).
type dhResult struct {
	authKey mtcrypto.AuthKey
	gB      []byte
}

// computeDH picks a random 2048-bit client exponent b and derives
// auth_key = g_a^b mod p, g_b = g^b mod p, mirroring
// original_source/.../auth/dh.py's make_dh_result.
func computeDH(g int32, dhPrime, gA []byte) (*dhResult, error) {
	if g <= 1 {
		return nil, errors.Wrap(ErrInvalidDHParams, "g must be > 1")
	}
	p := new(big.Int).SetBytes(dhPrime)
	if p.Sign() <= 0 {
		return nil, errors.Wrap(ErrInvalidDHParams, "dh_prime must be > 0")
	}
	ga := new(big.Int).SetBytes(gA)
	one := big.NewInt(1)
	pMinus1 := new(big.Int).Sub(p, one)
	if ga.Cmp(one) <= 0 || ga.Cmp(pMinus1) >= 0 {
		return nil, errors.Wrap(ErrInvalidDHParams, "g_a out of range")
	}

	bBytes := make([]byte, 256)
	if _, err := rand.Read(bBytes); err != nil {
		return nil, errors.Wrap(err, "random exponent")
	}
	b := new(big.Int).SetBytes(bBytes)

	gBig := big.NewInt(int64(g))
	gB := new(big.Int).Exp(gBig, b, p)
	authInt := new(big.Int).Exp(ga, b, p)

	var authKeyValue [256]byte
	authBytes := authInt.Bytes()
	if len(authBytes) > len(authKeyValue) {
		return nil, errors.Wrap(ErrInvalidDHParams, "auth_key exceeds 2048 bits")
	}
	copy(authKeyValue[len(authKeyValue)-len(authBytes):], authBytes)

	return &dhResult{
		authKey: mtcrypto.NewAuthKey(authKeyValue),
		gB:      gB.Bytes(),
	}, nil
}
