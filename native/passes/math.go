package passes

import (
	"math"

	"github.com/holiman/uint256"
)

// bpsPower is the divisor turning basis points into a fraction.
var bpsPower = uint256.NewInt(10_000)

var six = uint256.NewInt(6)

func checkedAdd(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, ErrMathOverflow
	}
	return a + b, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrMathOverflow
	}
	return a - b, nil
}

// ceilDiv divides rounding up. x == d is short-circuited to one so the x-1
// adjustment below cannot collide with the divisor.
func ceilDiv(x, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrMathOverflow
	}
	if x.IsZero() {
		return uint256.NewInt(0), nil
	}
	if x.Eq(d) {
		return uint256.NewInt(1), nil
	}
	out := new(uint256.Int).SubUint64(x, 1)
	out.Div(out, d)
	return out.AddUint64(out, 1), nil
}

func toUint64(x *uint256.Int) (uint64, error) {
	if !x.IsUint64() {
		return 0, ErrMathOverflow
	}
	return x.Uint64(), nil
}
