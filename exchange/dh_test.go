package exchange

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDHSharedSecret(t *testing.T) {
	p, err := rand.Prime(rand.Reader, 512)
	require.NoError(t, err)
	g := int32(2)

	a, err := rand.Int(rand.Reader, p)
	require.NoError(t, err)
	gA := new(big.Int).Exp(big.NewInt(int64(g)), a, p)

	result, err := computeDH(g, p.Bytes(), gA.Bytes())
	require.NoError(t, err)

	gB := new(big.Int).SetBytes(result.gB)
	serverShared := new(big.Int).Exp(gB, a, p)

	clientAuthKey := new(big.Int).SetBytes(result.authKey.Value[:])
	require.Equal(t, serverShared, clientAuthKey)
}

func TestComputeDHRejectsOutOfRangeGA(t *testing.T) {
	p, err := rand.Prime(rand.Reader, 256)
	require.NoError(t, err)
	_, err = computeDH(2, p.Bytes(), big.NewInt(1).Bytes())
	require.ErrorIs(t, err, ErrInvalidDHParams)
}

func TestComputeDHRejectsBadG(t *testing.T) {
	p, err := rand.Prime(rand.Reader, 256)
	require.NoError(t, err)
	_, err = computeDH(1, p.Bytes(), big.NewInt(5).Bytes())
	require.ErrorIs(t, err, ErrInvalidDHParams)
}
