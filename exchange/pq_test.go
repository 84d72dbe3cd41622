package exchange

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFactorizePQSmallKnown(t *testing.T) {
	cases := []struct {
		p, q int64
	}{
		{2, 3}, {17, 23}, {101, 103}, {65537, 65539}, {2, 2147483647},
	}
	for _, c := range cases {
		pq := new(big.Int).Mul(big.NewInt(c.p), big.NewInt(c.q))
		p, q, err := FactorizePQ(pq)
		require.NoError(t, err)
		require.Equal(t, big.NewInt(c.p), p)
		require.Equal(t, big.NewInt(c.q), q)
	}
}

func TestFactorizePQProperty(t *testing.T) {
	for i := 0; i < 8; i++ {
		p, err := rand.Prime(rand.Reader, 31)
		require.NoError(t, err)
		q, err := rand.Prime(rand.Reader, 31)
		require.NoError(t, err)
		if p.Cmp(q) == 0 {
			continue
		}
		pq := new(big.Int).Mul(p, q)

		gotP, gotQ, err := FactorizePQ(pq)
		require.NoError(t, err)
		require.Equal(t, big.NewInt(1), new(big.Int).GCD(nil, nil, gotP, gotQ))
		require.Equal(t, pq, new(big.Int).Mul(gotP, gotQ))
		require.True(t, gotP.Cmp(gotQ) < 0)
	}
}

func TestFactorizePQRejectsPrime(t *testing.T) {
	prime, err := rand.Prime(rand.Reader, 40)
	require.NoError(t, err)
	_, _, err = FactorizePQ(prime)
	require.ErrorIs(t, err, ErrPQFactorization)
}
