package types

import "math/big"

// Account holds the custodial balances tracked for a single address. Native
// currency lives directly on the account; token balances are tracked by the
// state manager per (address, symbol) pair.
type Account struct {
	Nonce         uint64   `json:"nonce"`
	BalanceNative *big.Int `json:"balanceNative"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce, BalanceNative: big.NewInt(0)}
	if a.BalanceNative != nil {
		clone.BalanceNative = new(big.Int).Set(a.BalanceNative)
	}
	return clone
}
