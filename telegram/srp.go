package telegram

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"math/big"

	"github.com/go-faster/errors"
	"github.com/go-faster/xor"
	"golang.org/x/crypto/pbkdf2"

	"github.com/meniwap/telecraftor-core/tl"
)

// pad left-zero-pads v to exactly n bytes, per spec.md §4.7's "_padded"
// convention ("left-zero-padded to the exact byte-length of p").
func pad(v *big.Int, n int) []byte {
	raw := v.Bytes()
	if len(raw) >= n {
		return raw[len(raw)-n:]
	}
	out := make([]byte, n)
	copy(out[n-len(raw):], raw)
	return out
}

func sha256Sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// computeSRP implements spec.md §4.7's check_password derivation exactly:
// PH1/PH2 password hashing, then the SRP exchange producing (A, M1) to
// send back as InputCheckPasswordSRP.
func computeSRP(password string, pw tl.Password) (tl.InputCheckPasswordSRP, error) {
	if len(pw.P) == 0 {
		return tl.InputCheckPasswordSRP{}, errors.New("srp: empty prime")
	}

	p := new(big.Int).SetBytes(pw.P)
	g := big.NewInt(int64(pw.G))
	b := new(big.Int).SetBytes(pw.SRPB)
	n := len(pw.P)

	ph1 := sha256Sum(pw.Salt1, []byte(password), pw.Salt1)
	derived := pbkdf2.Key(ph1, pw.Salt2, 100000, 64, sha512.New)
	ph2 := sha256Sum(pw.Salt2, derived, pw.Salt2)
	x := new(big.Int).SetBytes(ph2)

	aRandom, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 2048))
	if err != nil {
		return tl.InputCheckPasswordSRP{}, errors.Wrap(err, "generate random exponent")
	}

	a := new(big.Int).Exp(g, aRandom, p)
	aPadded := pad(a, n)
	bPadded := pad(b, n)

	u := new(big.Int).SetBytes(sha256Sum(aPadded, bPadded))
	k := new(big.Int).SetBytes(sha256Sum(pad(p, n), pad(g, n)))

	gx := new(big.Int).Exp(g, x, p)
	kv := new(big.Int).Mod(new(big.Int).Mul(k, gx), p)

	t := new(big.Int).Mod(new(big.Int).Sub(b, kv), p)
	if t.Sign() < 0 {
		t.Add(t, p)
	}

	exponent := new(big.Int).Add(aRandom, new(big.Int).Mul(u, x))
	s := new(big.Int).Exp(t, exponent, p)
	sPadded := pad(s, n)
	kHash := sha256Sum(sPadded)

	gHash := sha256Sum(pad(g, n))
	pHash := sha256Sum(pad(p, n))
	xored := make([]byte, len(pHash))
	xor.Bytes(xored, pHash, gHash)

	m1 := sha256Sum(xored, sha256Sum(pw.Salt1), sha256Sum(pw.Salt2), aPadded, bPadded, kHash)

	return tl.InputCheckPasswordSRP{SRPID: pw.SRPID, A: aPadded, M1: m1}, nil
}
