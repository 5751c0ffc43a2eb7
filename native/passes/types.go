package passes

// Rail selects the payment transport for a trade.
type Rail uint8

const (
	// RailToken settles trades in the configured payment token.
	RailToken Rail = iota
	// RailNative settles trades in the native gas currency.
	RailNative
)

func (r Rail) String() string {
	switch r {
	case RailToken:
		return "token"
	case RailNative:
		return "native"
	default:
		return "unknown"
	}
}

// PassSupply tracks the outstanding pass units for one owner's market.
type PassSupply struct {
	Owner  [20]byte `json:"owner"`
	Amount uint64   `json:"amount"`
}

// PassBalance tracks the pass units one holder owns in one owner's market.
// Rows are created lazily on the first buy and never deleted; a zero amount
// is a valid terminal state.
type PassBalance struct {
	Owner  [20]byte `json:"owner"`
	Holder [20]byte `json:"holder"`
	Amount uint64   `json:"amount"`
}

// MarketConfig is the singleton deployment configuration shared by all
// markets. Trades read it; only the admin setters write it.
type MarketConfig struct {
	Admin              [20]byte `json:"admin"`
	PaymentToken       string   `json:"paymentToken"`
	EscrowTokenWallet  [20]byte `json:"escrowTokenWallet"`
	EscrowNativeWallet [20]byte `json:"escrowNativeWallet"`
	ProtocolFeeBps     uint64   `json:"protocolFeeBps"`
	OwnerFeeBps        uint64   `json:"ownerFeeBps"`
	ProtocolFeeWallet  [20]byte `json:"protocolFeeWallet"`
}

// Clone returns a copy of the config.
func (c *MarketConfig) Clone() *MarketConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Validate checks the structural invariants of the config.
func (c *MarketConfig) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if isZeroAddress(c.Admin) || c.PaymentToken == "" {
		return ErrInvalidConfig
	}
	if isZeroAddress(c.EscrowTokenWallet) || isZeroAddress(c.EscrowNativeWallet) || isZeroAddress(c.ProtocolFeeWallet) {
		return ErrInvalidConfig
	}
	if err := ValidateFeeBps(c.ProtocolFeeBps); err != nil {
		return err
	}
	return ValidateFeeBps(c.OwnerFeeBps)
}

// TradeReceipt summarises a settled issue, buy, or sell for callers and
// event emission.
type TradeReceipt struct {
	Owner       [20]byte `json:"owner"`
	Trader      [20]byte `json:"trader"`
	Rail        Rail     `json:"rail"`
	Amount      uint64   `json:"amount"`
	Price       uint64   `json:"price"`
	ProtocolFee uint64   `json:"protocolFee"`
	OwnerFee    uint64   `json:"ownerFee"`
	Supply      uint64   `json:"supply"`
	Balance     uint64   `json:"balance"`
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
