package passes

import "github.com/holiman/uint256"

// Curve prices passes on a quadratic bonding curve: the i-th pass costs
// i^2 price units, so a trade of q passes starting at supply s costs the
// definite sum of squares over [s, s+q). UnitScale converts price units into
// base units of the payment currency and Divisor tunes the curve steepness.
type Curve struct {
	UnitScale uint64
	Divisor   uint64
}

// TokenCurve prices the stablecoin-denominated market (6 decimals).
var TokenCurve = Curve{UnitScale: 1_000_000, Divisor: 160}

// NativeCurve prices the native-currency market (9 decimals). The divisor is
// ten times larger to offset the larger base-unit scale.
var NativeCurve = Curve{UnitScale: 1_000_000_000, Divisor: 1_600}

// squareSum returns S(n) = (n-1)·n·(2(n-1)+1)/6, the sum of squares below n.
// The division is exact. S(0) = S(1) = 0, which is what makes the owner's
// first pass free without a special case.
func squareSum(n *uint256.Int) *uint256.Int {
	if n.IsZero() {
		return uint256.NewInt(0)
	}
	nm1 := new(uint256.Int).SubUint64(n, 1)
	odd := new(uint256.Int).Add(nm1, nm1)
	odd.AddUint64(odd, 1)
	out := new(uint256.Int).Mul(nm1, n)
	out.Mul(out, odd)
	return out.Div(out, six)
}

// Price returns the cost in base units of buying amount passes starting at
// the given supply. It is deterministic and side-effect free. All
// intermediates are 256-bit wide, so the full u64 domain cannot overflow
// before the final truncation; a result that does not fit in 64 bits yields
// ErrMathOverflow.
func (c Curve) Price(supply, amount uint64) (uint64, error) {
	if c.Divisor == 0 {
		return 0, ErrMathOverflow
	}
	start := uint256.NewInt(supply)
	end := new(uint256.Int).AddUint64(start, amount)
	units := new(uint256.Int).Sub(squareSum(end), squareSum(start))
	units.Mul(units, uint256.NewInt(c.UnitScale))
	units.Div(units, uint256.NewInt(c.Divisor))
	return toUint64(units)
}
