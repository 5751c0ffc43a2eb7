package passes

import "github.com/holiman/uint256"

// MaxFeeBps caps each fee rate at 100%. Enforced at config initialisation,
// in the admin setters, and in SplitFees itself.
const MaxFeeBps = 10_000

// ValidateFeeBps rejects fee rates above MaxFeeBps.
func ValidateFeeBps(bps uint64) error {
	if bps > MaxFeeBps {
		return ErrFeeBpsTooHigh
	}
	return nil
}

// feeFor returns ceil(price·bps/10_000). Ceiling division keeps any nonzero
// rate on a nonzero price at a minimum of one base unit, so fees cannot be
// eroded away on small trades. Zero price or zero rate short-circuits to
// zero before the ceiling routine's -1 adjustment can apply.
func feeFor(price, bps uint64) (uint64, error) {
	if price == 0 || bps == 0 {
		return 0, nil
	}
	scaled := new(uint256.Int).Mul(uint256.NewInt(price), uint256.NewInt(bps))
	fee, err := ceilDiv(scaled, bpsPower)
	if err != nil {
		return 0, err
	}
	return toUint64(fee)
}

// SplitFees computes the protocol and owner fee components for a trade price.
// Rates above MaxFeeBps are rejected here as well as at configuration time.
func SplitFees(price, protocolBps, ownerBps uint64) (uint64, uint64, error) {
	if err := ValidateFeeBps(protocolBps); err != nil {
		return 0, 0, err
	}
	if err := ValidateFeeBps(ownerBps); err != nil {
		return 0, 0, err
	}
	protocolFee, err := feeFor(price, protocolBps)
	if err != nil {
		return 0, 0, err
	}
	ownerFee, err := feeFor(price, ownerBps)
	if err != nil {
		return 0, 0, err
	}
	return protocolFee, ownerFee, nil
}
