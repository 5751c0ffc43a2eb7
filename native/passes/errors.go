package passes

import "errors"

var (
	// ErrNilState is returned when the engine is used before SetState.
	ErrNilState = errors.New("passes engine: state not configured")
	// ErrZeroSupply rejects buys against a market with no issued supply.
	ErrZeroSupply = errors.New("passes: market has no issued supply")
	// ErrZeroAmount rejects trades with a zero pass quantity.
	ErrZeroAmount = errors.New("passes: amount cannot be zero")
	// ErrZeroPrice rejects trades whose computed price collapses to zero.
	ErrZeroPrice = errors.New("passes: price cannot be zero")
	// ErrLastPass rejects sells that would drain the supply to zero.
	ErrLastPass = errors.New("passes: cannot sell the last pass")
	// ErrInsufficientPasses rejects sells exceeding the holder balance.
	ErrInsufficientPasses = errors.New("passes: insufficient passes")
	// ErrAlreadyIssued rejects a second Issue for the same owner.
	ErrAlreadyIssued = errors.New("passes: passes already issued")
	// ErrMathOverflow is the catch-all for checked arithmetic violations.
	ErrMathOverflow = errors.New("passes: overflow in arithmetic operation")
	// ErrInsufficientFunds rejects fund movements the payer cannot cover.
	ErrInsufficientFunds = errors.New("passes: insufficient funds")
	// ErrUnauthorizedTransfer rejects fund movements from an account that is
	// neither the authenticated signer nor the escrow custody.
	ErrUnauthorizedTransfer = errors.New("passes: transfer authority mismatch")
	// ErrUnknownRail rejects trades on an unrecognised payment rail.
	ErrUnknownRail = errors.New("passes: unknown payment rail")
	// ErrConfigNotFound is returned when the market config is missing.
	ErrConfigNotFound = errors.New("passes: market config not initialised")
	// ErrConfigExists rejects a second market config initialisation.
	ErrConfigExists = errors.New("passes: market config already initialised")
	// ErrInvalidConfig rejects a structurally incomplete market config.
	ErrInvalidConfig = errors.New("passes: invalid market config")
	// ErrNotAdmin rejects administrative calls from non-admin accounts.
	ErrNotAdmin = errors.New("passes: caller is not the market admin")
	// ErrFeeBpsTooHigh rejects fee rates above 100%.
	ErrFeeBpsTooHigh = errors.New("passes: fee rate exceeds 10000 bps")
)
