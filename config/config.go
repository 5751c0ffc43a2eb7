package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"passchain/crypto"
	"passchain/native/passes"
)

// MarketGenesis describes the market configuration seeded on first start.
// Addresses are bech32-encoded.
type MarketGenesis struct {
	Admin              string `toml:"Admin"`
	PaymentToken       string `toml:"PaymentToken"`
	EscrowTokenWallet  string `toml:"EscrowTokenWallet"`
	EscrowNativeWallet string `toml:"EscrowNativeWallet"`
	ProtocolFeeWallet  string `toml:"ProtocolFeeWallet"`
	ProtocolFeeBps     uint64 `toml:"ProtocolFeeBps"`
	OwnerFeeBps        uint64 `toml:"OwnerFeeBps"`
}

type Config struct {
	RPCAddress  string        `toml:"RPCAddress"`
	DataDir     string        `toml:"DataDir"`
	NetworkName string        `toml:"NetworkName"`
	Env         string        `toml:"Env"`
	Market      MarketGenesis `toml:"market"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./passd-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "passchain-local"
	}
	if strings.TrimSpace(cfg.Market.PaymentToken) == "" {
		cfg.Market.PaymentToken = "USDQ"
	}
}

// Validate checks the parts of the file that can be rejected without state
// access: bounded fee rates and well-formed addresses.
func (c *Config) Validate() error {
	if err := passes.ValidateFeeBps(c.Market.ProtocolFeeBps); err != nil {
		return fmt.Errorf("market.ProtocolFeeBps: %w", err)
	}
	if err := passes.ValidateFeeBps(c.Market.OwnerFeeBps); err != nil {
		return fmt.Errorf("market.OwnerFeeBps: %w", err)
	}
	for field, addr := range map[string]string{
		"market.Admin":              c.Market.Admin,
		"market.EscrowTokenWallet":  c.Market.EscrowTokenWallet,
		"market.EscrowNativeWallet": c.Market.EscrowNativeWallet,
		"market.ProtocolFeeWallet":  c.Market.ProtocolFeeWallet,
	} {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

// Seeded reports whether the file carries a complete market genesis.
func (c *Config) Seeded() bool {
	m := c.Market
	return strings.TrimSpace(m.Admin) != "" &&
		strings.TrimSpace(m.EscrowTokenWallet) != "" &&
		strings.TrimSpace(m.EscrowNativeWallet) != "" &&
		strings.TrimSpace(m.ProtocolFeeWallet) != ""
}

// MarketConfig converts the genesis section into the engine's config type.
func (c *Config) MarketConfig() (*passes.MarketConfig, error) {
	decode := func(field, addr string) ([20]byte, error) {
		decoded, err := crypto.DecodeAddress(strings.TrimSpace(addr))
		if err != nil {
			return [20]byte{}, fmt.Errorf("%s: %w", field, err)
		}
		return decoded.Raw(), nil
	}
	admin, err := decode("market.Admin", c.Market.Admin)
	if err != nil {
		return nil, err
	}
	escrowToken, err := decode("market.EscrowTokenWallet", c.Market.EscrowTokenWallet)
	if err != nil {
		return nil, err
	}
	escrowNative, err := decode("market.EscrowNativeWallet", c.Market.EscrowNativeWallet)
	if err != nil {
		return nil, err
	}
	feeWallet, err := decode("market.ProtocolFeeWallet", c.Market.ProtocolFeeWallet)
	if err != nil {
		return nil, err
	}
	cfg := &passes.MarketConfig{
		Admin:              admin,
		PaymentToken:       strings.ToUpper(strings.TrimSpace(c.Market.PaymentToken)),
		EscrowTokenWallet:  escrowToken,
		EscrowNativeWallet: escrowNative,
		ProtocolFeeBps:     c.Market.ProtocolFeeBps,
		OwnerFeeBps:        c.Market.OwnerFeeBps,
		ProtocolFeeWallet:  feeWallet,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Market.ProtocolFeeBps = 100
	cfg.Market.OwnerFeeBps = 100

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
