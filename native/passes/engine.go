package passes

import (
	"encoding/hex"
	"log/slog"
	"sync"

	"passchain/core/events"
)

// engineState is the persistence surface the engine mutates. Implementations
// must apply writes atomically per call; the engine orders its own calls so
// that ledger aggregates are only rewritten after every fund movement for the
// operation has succeeded.
type engineState interface {
	PassSupplyGet(owner [20]byte) (*PassSupply, bool, error)
	PassSupplyPut(supply *PassSupply) error
	PassBalanceGet(owner, holder [20]byte) (*PassBalance, bool, error)
	PassBalancePut(balance *PassBalance) error
	MarketConfigGet() (*MarketConfig, bool, error)
	MarketConfigPut(cfg *MarketConfig) error
	custodyState
}

// Engine wires the pass-market business logic with persistence and event
// emission. The mutex serialises operations, standing in for the execution
// environment's exclusive-access guarantee on the affected aggregates.
type Engine struct {
	mu          sync.Mutex
	state       engineState
	emitter     events.Emitter
	logger      *slog.Logger
	tokenCurve  Curve
	nativeCurve Curve
}

// NewEngine constructs a pass-market engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		tokenCurve:  TokenCurve,
		nativeCurve: NativeCurve,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger used for trade traces.
func (e *Engine) SetLogger(logger *slog.Logger) { e.logger = logger }

func (e *Engine) log() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func (e *Engine) curveFor(rail Rail) (Curve, error) {
	switch rail {
	case RailToken:
		return e.tokenCurve, nil
	case RailNative:
		return e.nativeCurve, nil
	default:
		return Curve{}, ErrUnknownRail
	}
}

// custodyFor builds the fund-movement rail for one trade. The signer is the
// authenticated caller; the protocol fee destination differs per rail (the
// configured fee wallet on the token rail, the admin account on the native
// rail, matching the deployment's custody layout).
func (e *Engine) custodyFor(rail Rail, cfg *MarketConfig, signer [20]byte) (Custody, [20]byte, error) {
	switch rail {
	case RailToken:
		return newTokenCustody(e.state, cfg.PaymentToken, cfg.EscrowTokenWallet, signer), cfg.ProtocolFeeWallet, nil
	case RailNative:
		return newNativeCustody(e.state, cfg.EscrowNativeWallet, signer), cfg.Admin, nil
	default:
		return nil, [20]byte{}, ErrUnknownRail
	}
}

// Quote returns the price of buying amount passes at the given supply on the
// selected rail, without touching state.
func (e *Engine) Quote(rail Rail, supply, amount uint64) (uint64, error) {
	curve, err := e.curveFor(rail)
	if err != nil {
		return 0, err
	}
	return curve.Price(supply, amount)
}

// Supply returns the outstanding pass units for the owner's market. Missing
// rows read as zero.
func (e *Engine) Supply(owner [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	supply, ok, err := e.state.PassSupplyGet(owner)
	if err != nil {
		return 0, err
	}
	if !ok || supply == nil {
		return 0, nil
	}
	return supply.Amount, nil
}

// Balance returns the holder's pass balance in the owner's market.
func (e *Engine) Balance(owner, holder [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	balance, ok, err := e.state.PassBalanceGet(owner, holder)
	if err != nil {
		return 0, err
	}
	if !ok || balance == nil {
		return 0, nil
	}
	return balance.Amount, nil
}

// Issue seeds an owner's market with its first passes. It is one-time only:
// a market whose supply is already nonzero cannot be re-issued, and the
// seeded amount must be positive. The owner starts holding the entire supply.
func (e *Engine) Issue(owner [20]byte, amount uint64) (*TradeReceipt, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	supply, ok, err := e.state.PassSupplyGet(owner)
	if err != nil {
		return nil, err
	}
	if ok && supply != nil && supply.Amount != 0 {
		return nil, ErrAlreadyIssued
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	if err := e.state.PassSupplyPut(&PassSupply{Owner: owner, Amount: amount}); err != nil {
		return nil, err
	}
	if err := e.state.PassBalancePut(&PassBalance{Owner: owner, Holder: owner, Amount: amount}); err != nil {
		return nil, err
	}
	e.emit(IssuedEvent(hexAddr(owner), amount))
	e.log().Info("passes issued", "owner", hexAddr(owner), "amount", amount)
	return &TradeReceipt{Owner: owner, Trader: owner, Amount: amount, Supply: amount, Balance: amount}, nil
}

// Buy purchases passes from the owner's market. The buyer pays the curve
// price into escrow plus protocol and owner fees on top. The market must
// already be seeded through Issue; first-unit purchases are rejected for
// every buyer, owner included. Ledger aggregates are rewritten only after
// every fund movement has been staged and committed, so any failure leaves
// the ledger untouched.
func (e *Engine) Buy(cfg *MarketConfig, rail Rail, owner, buyer [20]byte, amount uint64) (*TradeReceipt, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return nil, ErrZeroAmount
	}
	supplyRow, ok, err := e.state.PassSupplyGet(owner)
	if err != nil {
		return nil, err
	}
	supply := uint64(0)
	if ok && supplyRow != nil {
		supply = supplyRow.Amount
	}
	if supply == 0 {
		return nil, ErrZeroSupply
	}
	curve, err := e.curveFor(rail)
	if err != nil {
		return nil, err
	}
	price, err := curve.Price(supply, amount)
	if err != nil {
		return nil, err
	}
	if price == 0 {
		return nil, ErrZeroPrice
	}
	protocolFee, ownerFee, err := SplitFees(price, cfg.ProtocolFeeBps, cfg.OwnerFeeBps)
	if err != nil {
		return nil, err
	}

	balanceRow, ok, err := e.state.PassBalanceGet(owner, buyer)
	if err != nil {
		return nil, err
	}
	if !ok || balanceRow == nil {
		balanceRow = &PassBalance{Owner: owner, Holder: buyer}
	}
	newBalance, err := checkedAdd(balanceRow.Amount, amount)
	if err != nil {
		return nil, err
	}
	newSupply, err := checkedAdd(supply, amount)
	if err != nil {
		return nil, err
	}

	custody, protocolDst, err := e.custodyFor(rail, cfg, buyer)
	if err != nil {
		return nil, err
	}
	if err := custody.Transfer(buyer, custody.Escrow(), price); err != nil {
		return nil, err
	}
	if err := custody.Transfer(buyer, protocolDst, protocolFee); err != nil {
		return nil, err
	}
	if err := custody.Transfer(buyer, owner, ownerFee); err != nil {
		return nil, err
	}
	if err := custody.Commit(); err != nil {
		return nil, err
	}

	balanceRow.Amount = newBalance
	if err := e.state.PassBalancePut(balanceRow); err != nil {
		return nil, err
	}
	if err := e.state.PassSupplyPut(&PassSupply{Owner: owner, Amount: newSupply}); err != nil {
		return nil, err
	}

	receipt := &TradeReceipt{
		Owner:       owner,
		Trader:      buyer,
		Rail:        rail,
		Amount:      amount,
		Price:       price,
		ProtocolFee: protocolFee,
		OwnerFee:    ownerFee,
		Supply:      newSupply,
		Balance:     newBalance,
	}
	e.emit(BoughtEvent(receipt))
	e.log().Info("passes bought",
		"owner", hexAddr(owner), "buyer", hexAddr(buyer), "rail", rail.String(),
		"amount", amount, "price", price,
		"protocolFee", protocolFee, "ownerFee", ownerFee,
		"balance", newBalance, "supply", newSupply)
	return receipt, nil
}

// Sell returns passes to the owner's market. The trade is priced at the
// post-sale supply level and the seller receives the price minus both fees
// out of escrow. The entire remaining supply can never be sold: at least one
// pass stays outstanding.
func (e *Engine) Sell(cfg *MarketConfig, rail Rail, owner, seller [20]byte, amount uint64) (*TradeReceipt, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return nil, ErrZeroAmount
	}
	supplyRow, ok, err := e.state.PassSupplyGet(owner)
	if err != nil {
		return nil, err
	}
	supply := uint64(0)
	if ok && supplyRow != nil {
		supply = supplyRow.Amount
	}
	if supply <= amount {
		return nil, ErrLastPass
	}
	balanceRow, ok, err := e.state.PassBalanceGet(owner, seller)
	if err != nil {
		return nil, err
	}
	balance := uint64(0)
	if ok && balanceRow != nil {
		balance = balanceRow.Amount
	}
	if balance < amount {
		return nil, ErrInsufficientPasses
	}
	curve, err := e.curveFor(rail)
	if err != nil {
		return nil, err
	}
	price, err := curve.Price(supply-amount, amount)
	if err != nil {
		return nil, err
	}
	if price == 0 {
		return nil, ErrZeroPrice
	}
	protocolFee, ownerFee, err := SplitFees(price, cfg.ProtocolFeeBps, cfg.OwnerFeeBps)
	if err != nil {
		return nil, err
	}
	// Fees are bounded fractions of price, but the checks stay load-bearing.
	net, err := checkedSub(price, protocolFee)
	if err != nil {
		return nil, err
	}
	net, err = checkedSub(net, ownerFee)
	if err != nil {
		return nil, err
	}
	newSupply, err := checkedSub(supply, amount)
	if err != nil {
		return nil, err
	}
	newBalance, err := checkedSub(balance, amount)
	if err != nil {
		return nil, err
	}

	custody, protocolDst, err := e.custodyFor(rail, cfg, seller)
	if err != nil {
		return nil, err
	}
	escrow := custody.Escrow()
	if err := custody.Transfer(escrow, seller, net); err != nil {
		return nil, err
	}
	if err := custody.Transfer(escrow, protocolDst, protocolFee); err != nil {
		return nil, err
	}
	if err := custody.Transfer(escrow, owner, ownerFee); err != nil {
		return nil, err
	}
	if err := custody.Commit(); err != nil {
		return nil, err
	}

	if balanceRow == nil {
		balanceRow = &PassBalance{Owner: owner, Holder: seller}
	}
	balanceRow.Amount = newBalance
	if err := e.state.PassBalancePut(balanceRow); err != nil {
		return nil, err
	}
	if err := e.state.PassSupplyPut(&PassSupply{Owner: owner, Amount: newSupply}); err != nil {
		return nil, err
	}

	receipt := &TradeReceipt{
		Owner:       owner,
		Trader:      seller,
		Rail:        rail,
		Amount:      amount,
		Price:       price,
		ProtocolFee: protocolFee,
		OwnerFee:    ownerFee,
		Supply:      newSupply,
		Balance:     newBalance,
	}
	e.emit(SoldEvent(receipt))
	e.log().Info("passes sold",
		"owner", hexAddr(owner), "seller", hexAddr(seller), "rail", rail.String(),
		"amount", amount, "price", price,
		"protocolFee", protocolFee, "ownerFee", ownerFee,
		"balance", newBalance, "supply", newSupply)
	return receipt, nil
}

// InitMarketConfig persists the deployment configuration. One-time only.
func (e *Engine) InitMarketConfig(cfg *MarketConfig) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok, err := e.state.MarketConfigGet(); err != nil {
		return err
	} else if ok {
		return ErrConfigExists
	}
	if err := e.state.MarketConfigPut(cfg.Clone()); err != nil {
		return err
	}
	e.emit(ConfigUpdatedEvent(cfg))
	e.log().Info("market config initialised",
		"admin", hexAddr(cfg.Admin), "paymentToken", cfg.PaymentToken,
		"protocolFeeBps", cfg.ProtocolFeeBps, "ownerFeeBps", cfg.OwnerFeeBps)
	return nil
}

// MarketConfig returns the stored deployment configuration.
func (e *Engine) MarketConfig() (*MarketConfig, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, ok, err := e.state.MarketConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return nil, ErrConfigNotFound
	}
	return cfg.Clone(), nil
}

func (e *Engine) updateConfig(caller [20]byte, mutate func(cfg *MarketConfig) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, ok, err := e.state.MarketConfigGet()
	if err != nil {
		return err
	}
	if !ok || cfg == nil {
		return ErrConfigNotFound
	}
	if caller != cfg.Admin {
		return ErrNotAdmin
	}
	if err := mutate(cfg); err != nil {
		return err
	}
	if err := e.state.MarketConfigPut(cfg); err != nil {
		return err
	}
	e.emit(ConfigUpdatedEvent(cfg))
	return nil
}

// SetProtocolFeeBps updates the protocol fee rate. Admin only.
func (e *Engine) SetProtocolFeeBps(caller [20]byte, bps uint64) error {
	return e.updateConfig(caller, func(cfg *MarketConfig) error {
		if err := ValidateFeeBps(bps); err != nil {
			return err
		}
		cfg.ProtocolFeeBps = bps
		return nil
	})
}

// SetOwnerFeeBps updates the owner fee rate. Admin only.
func (e *Engine) SetOwnerFeeBps(caller [20]byte, bps uint64) error {
	return e.updateConfig(caller, func(cfg *MarketConfig) error {
		if err := ValidateFeeBps(bps); err != nil {
			return err
		}
		cfg.OwnerFeeBps = bps
		return nil
	})
}

// SetProtocolFeeWallet updates the token-rail protocol fee destination.
// Admin only.
func (e *Engine) SetProtocolFeeWallet(caller, wallet [20]byte) error {
	return e.updateConfig(caller, func(cfg *MarketConfig) error {
		if isZeroAddress(wallet) {
			return ErrInvalidConfig
		}
		cfg.ProtocolFeeWallet = wallet
		return nil
	})
}
