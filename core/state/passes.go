package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"passchain/native/passes"
)

// Storage addressing for the pass-market aggregates. The derivation is
// deterministic: a role prefix plus the owner (and holder) identities,
// keccak-hashed into the store's key space.
var (
	passSupplyPrefix  = []byte("passes/supply/")
	passBalancePrefix = []byte("passes/balance/")
	marketConfigKey   = []byte("passes/config")
)

func passSupplyKey(owner [20]byte) []byte {
	buf := make([]byte, len(passSupplyPrefix)+len(owner))
	copy(buf, passSupplyPrefix)
	copy(buf[len(passSupplyPrefix):], owner[:])
	return ethcrypto.Keccak256(buf)
}

func passBalanceKey(owner, holder [20]byte) []byte {
	buf := make([]byte, len(passBalancePrefix)+len(owner)+1+len(holder))
	copy(buf, passBalancePrefix)
	copy(buf[len(passBalancePrefix):], owner[:])
	buf[len(passBalancePrefix)+len(owner)] = '/'
	copy(buf[len(passBalancePrefix)+len(owner)+1:], holder[:])
	return ethcrypto.Keccak256(buf)
}

// PassSupplyGet returns the supply aggregate for the owner's market.
func (m *Manager) PassSupplyGet(owner [20]byte) (*passes.PassSupply, bool, error) {
	supply := new(passes.PassSupply)
	ok, err := m.getRLP(passSupplyKey(owner), supply)
	if err != nil || !ok {
		return nil, false, err
	}
	return supply, true, nil
}

// PassSupplyPut persists the supply aggregate for the owner's market.
func (m *Manager) PassSupplyPut(supply *passes.PassSupply) error {
	return m.putRLP(passSupplyKey(supply.Owner), supply)
}

// PassBalanceGet returns the holder's balance row in the owner's market.
func (m *Manager) PassBalanceGet(owner, holder [20]byte) (*passes.PassBalance, bool, error) {
	balance := new(passes.PassBalance)
	ok, err := m.getRLP(passBalanceKey(owner, holder), balance)
	if err != nil || !ok {
		return nil, false, err
	}
	return balance, true, nil
}

// PassBalancePut persists the holder's balance row.
func (m *Manager) PassBalancePut(balance *passes.PassBalance) error {
	return m.putRLP(passBalanceKey(balance.Owner, balance.Holder), balance)
}

// MarketConfigGet returns the stored market configuration.
func (m *Manager) MarketConfigGet() (*passes.MarketConfig, bool, error) {
	cfg := new(passes.MarketConfig)
	ok, err := m.getRLP(kvKey(marketConfigKey), cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

// MarketConfigPut persists the market configuration.
func (m *Manager) MarketConfigPut(cfg *passes.MarketConfig) error {
	return m.putRLP(kvKey(marketConfigKey), cfg)
}
