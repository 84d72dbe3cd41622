package exchange

import (
	"crypto/rand"
	"math/big"

	"github.com/go-faster/errors"
)

// ErrPQFactorization is returned when pq cannot be factored into two
// distinct primes (spec.md §4.2 step 2).
var ErrPQFactorization = errors.New("exchange: pq factorization failed")

var smallPrimes = []int64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47}

// FactorizePQ splits pq into its two prime factors p < q, as required to
// build p_q_inner_data (spec.md §4.2 step 2). It tries trial division
// against small primes first, since one of Telegram's two factors is
// frequently tiny, then falls back to Pollard's rho.
func FactorizePQ(pq *big.Int) (p, q *big.Int, err error) {
	if pq.Sign() <= 0 || pq.Cmp(big.NewInt(1)) == 0 {
		return nil, nil, errors.Wrap(ErrPQFactorization, "pq must be > 1")
	}
	if pq.ProbablyPrime(20) {
		return nil, nil, errors.Wrap(ErrPQFactorization, "pq is prime")
	}

	for _, sp := range smallPrimes {
		d := big.NewInt(sp)
		if new(big.Int).Mod(pq, d).Sign() == 0 {
			other := new(big.Int).Div(pq, d)
			return orderFactors(d, other)
		}
	}

	factor, err := pollardRho(pq)
	if err != nil {
		return nil, nil, err
	}
	other := new(big.Int).Div(pq, factor)

	factor, err = ensurePrime(factor)
	if err != nil {
		return nil, nil, err
	}
	other, err = ensurePrime(other)
	if err != nil {
		return nil, nil, err
	}

	if new(big.Int).Mul(factor, other).Cmp(pq) != 0 {
		return nil, nil, errors.Wrap(ErrPQFactorization, "refinement mismatch")
	}
	return orderFactors(factor, other)
}

func ensurePrime(n *big.Int) (*big.Int, error) {
	if n.ProbablyPrime(20) {
		return n, nil
	}
	factor, err := pollardRho(n)
	if err != nil {
		return nil, err
	}
	return factor, nil
}

func orderFactors(a, b *big.Int) (p, q *big.Int, err error) {
	if a.Cmp(b) < 0 {
		return a, b, nil
	}
	return b, a, nil
}

// pollardRho finds one nontrivial factor of n using Pollard's rho algorithm
// with Floyd cycle detection, retrying with a fresh pseudo-random c,x0 pair
// whenever a run degenerates to the trivial factor n.
func pollardRho(n *big.Int) (*big.Int, error) {
	if new(big.Int).Mod(n, big.NewInt(2)).Sign() == 0 {
		return big.NewInt(2), nil
	}

	one := big.NewInt(1)
	two := big.NewInt(2)

	for attempt := 0; attempt < 64; attempt++ {
		c, err := randomBelow(n)
		if err != nil {
			return nil, err
		}
		if c.Sign() == 0 {
			c = one
		}
		x, err := randomBelow(n)
		if err != nil {
			return nil, err
		}
		y := new(big.Int).Set(x)
		d := big.NewInt(1)

		f := func(v *big.Int) *big.Int {
			r := new(big.Int).Exp(v, two, n)
			r.Add(r, c)
			r.Mod(r, n)
			return r
		}

		for d.Cmp(one) == 0 {
			x = f(x)
			y = f(f(y))
			diff := new(big.Int).Sub(x, y)
			diff.Abs(diff)
			if diff.Sign() == 0 {
				d.Set(n)
				break
			}
			d = new(big.Int).GCD(nil, nil, diff, n)
		}
		if d.Cmp(n) != 0 && d.Sign() != 0 {
			return d, nil
		}
	}
	return nil, errors.Wrap(ErrPQFactorization, "pollard rho did not converge")
}

func randomBelow(n *big.Int) (*big.Int, error) {
	bound := new(big.Int).Sub(n, big.NewInt(1))
	if bound.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	v, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return nil, errors.Wrap(err, "random")
	}
	return v, nil
}
