package state

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"passchain/core/types"
	"passchain/storage"
)

// Manager reads and writes the persistent market state. Keys are prefixed,
// keccak256-hashed, and values RLP-encoded before they reach the underlying
// key-value store.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	accountPrefix = []byte("account:")
	balancePrefix = []byte("balance:")
)

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr []byte, symbol string) []byte {
	buf := make([]byte, len(balancePrefix)+len(symbol)+1+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], symbol)
	buf[len(balancePrefix)+len(symbol)] = ':'
	copy(buf[len(balancePrefix)+len(symbol)+1:], addr)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func normalizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return "", fmt.Errorf("token symbol required")
	}
	return normalized, nil
}

// getRLP loads and decodes the value stored under an already-hashed key. The
// boolean reports whether the key existed.
func (m *Manager) getRLP(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state manager unavailable")
	}
	data, err := m.db.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) putRLP(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager unavailable")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// GetAccount returns the account stored for the address, or nil when the
// address has never been touched.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	account := new(types.Account)
	ok, err := m.getRLP(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if account.BalanceNative == nil {
		account.BalanceNative = big.NewInt(0)
	}
	return account, nil
}

// PutAccount persists the account under the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("account required")
	}
	if account.BalanceNative == nil {
		account.BalanceNative = big.NewInt(0)
	}
	return m.putRLP(accountKey(addr), account)
}

// TokenBalance returns the stored balance of the token for the address.
// Missing entries default to zero.
func (m *Manager) TokenBalance(addr []byte, symbol string) (*big.Int, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	balance := new(big.Int)
	ok, err := m.getRLP(balanceKey(addr, normalized), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// SetTokenBalance overwrites the stored token balance for the address.
func (m *Manager) SetTokenBalance(addr []byte, symbol string, amount *big.Int) error {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("token %s balance cannot be negative", normalized)
	}
	return m.putRLP(balanceKey(addr, normalized), amount)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256 before it reaches the store.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.putRLP(kvKey(key), value)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	return m.getRLP(kvKey(key), out)
}
