package passes

import (
	"math/big"

	"passchain/core/types"
)

// custodyState is the slice of state the payment rails need.
type custodyState interface {
	TokenBalance(addr []byte, symbol string) (*big.Int, error)
	SetTokenBalance(addr []byte, symbol string, amount *big.Int) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Custody moves payment funds for a single trade. Transfers are staged
// against an in-operation view of the balances and only reach state on
// Commit, so a failed leg leaves nothing behind. A source account must be
// either the authenticated signer of the trade or the escrow custody itself;
// the escrow acts as its own transfer authority when paying out.
type Custody interface {
	Escrow() [20]byte
	Transfer(from, to [20]byte, amount uint64) error
	Commit() error
}

// stagedBalances tracks per-address balances touched during one operation.
type stagedBalances struct {
	balances map[[20]byte]*big.Int
	order    [][20]byte
}

func newStagedBalances() *stagedBalances {
	return &stagedBalances{balances: make(map[[20]byte]*big.Int)}
}

func (s *stagedBalances) get(addr [20]byte, load func() (*big.Int, error)) (*big.Int, error) {
	if bal, ok := s.balances[addr]; ok {
		return bal, nil
	}
	bal, err := load()
	if err != nil {
		return nil, err
	}
	if bal == nil {
		bal = big.NewInt(0)
	}
	s.balances[addr] = bal
	s.order = append(s.order, addr)
	return bal, nil
}

func (s *stagedBalances) move(from, to [20]byte, amount *big.Int, load func([20]byte) (*big.Int, error)) error {
	src, err := s.get(from, func() (*big.Int, error) { return load(from) })
	if err != nil {
		return err
	}
	if src.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	dst, err := s.get(to, func() (*big.Int, error) { return load(to) })
	if err != nil {
		return err
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}

// tokenCustody settles trades against the per-symbol token balances held by
// the state manager.
type tokenCustody struct {
	state  custodyState
	symbol string
	escrow [20]byte
	signer [20]byte
	staged *stagedBalances
}

func newTokenCustody(state custodyState, symbol string, escrow, signer [20]byte) *tokenCustody {
	return &tokenCustody{
		state:  state,
		symbol: symbol,
		escrow: escrow,
		signer: signer,
		staged: newStagedBalances(),
	}
}

func (c *tokenCustody) Escrow() [20]byte { return c.escrow }

func (c *tokenCustody) Transfer(from, to [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from != c.signer && from != c.escrow {
		return ErrUnauthorizedTransfer
	}
	return c.staged.move(from, to, new(big.Int).SetUint64(amount), func(addr [20]byte) (*big.Int, error) {
		return c.state.TokenBalance(addr[:], c.symbol)
	})
}

func (c *tokenCustody) Commit() error {
	for _, addr := range c.staged.order {
		if err := c.state.SetTokenBalance(addr[:], c.symbol, c.staged.balances[addr]); err != nil {
			return err
		}
	}
	return nil
}

// nativeCustody settles trades by debiting and crediting account balances
// directly; no transfer authority object is involved.
type nativeCustody struct {
	state  custodyState
	escrow [20]byte
	signer [20]byte
	staged *stagedBalances
}

func newNativeCustody(state custodyState, escrow, signer [20]byte) *nativeCustody {
	return &nativeCustody{
		state:  state,
		escrow: escrow,
		signer: signer,
		staged: newStagedBalances(),
	}
}

func (c *nativeCustody) Escrow() [20]byte { return c.escrow }

func (c *nativeCustody) Transfer(from, to [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from != c.signer && from != c.escrow {
		return ErrUnauthorizedTransfer
	}
	return c.staged.move(from, to, new(big.Int).SetUint64(amount), func(addr [20]byte) (*big.Int, error) {
		account, err := c.state.GetAccount(addr[:])
		if err != nil {
			return nil, err
		}
		if account == nil || account.BalanceNative == nil {
			return big.NewInt(0), nil
		}
		return new(big.Int).Set(account.BalanceNative), nil
	})
}

func (c *nativeCustody) Commit() error {
	for _, addr := range c.staged.order {
		account, err := c.state.GetAccount(addr[:])
		if err != nil {
			return err
		}
		if account == nil {
			account = &types.Account{BalanceNative: big.NewInt(0)}
		}
		account.BalanceNative = new(big.Int).Set(c.staged.balances[addr])
		if err := c.state.PutAccount(addr[:], account); err != nil {
			return err
		}
	}
	return nil
}
