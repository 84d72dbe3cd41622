package telegram

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/tl"
)

// A small, fixed safe-prime-shaped modulus is enough to exercise the
// derivation's arithmetic; computeSRP never validates p is actually safe.
func testPassword(t *testing.T) tl.Password {
	t.Helper()
	p, ok := new(big.Int).SetString(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA237327FFFFFFFFFFFFFFFF",
		16)
	require.True(t, ok)
	return tl.Password{
		SRPID: 1,
		SRPB:  big.NewInt(987654321).Bytes(),
		Salt1: []byte("salt-one"),
		Salt2: []byte("salt-two"),
		G:     2,
		P:     p.Bytes(),
	}
}

func TestComputeSRPProducesWellFormedProof(t *testing.T) {
	pw := testPassword(t)

	req, err := computeSRP("hunter2", pw)
	require.NoError(t, err)

	require.Equal(t, pw.SRPID, req.SRPID)
	require.Len(t, req.A, len(pw.P))
	require.Len(t, req.M1, 32)
}

func TestPadLeftZeroPadsToLength(t *testing.T) {
	// pad must be a pure function of its inputs: same value, same length
	// in, same bytes out, regardless of call site.
	v := big.NewInt(0x0102)
	require.Equal(t, []byte{0x00, 0x01, 0x02}, pad(v, 3))
	require.Equal(t, []byte{0x01, 0x02}, pad(v, 2))
}

func TestComputeSRPRejectsEmptyPrime(t *testing.T) {
	pw := testPassword(t)
	pw.P = nil
	_, err := computeSRP("hunter2", pw)
	require.Error(t, err)
}
