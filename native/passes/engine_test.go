package passes

import (
	"errors"
	"math/big"
	"testing"

	"passchain/core/events"
	"passchain/core/types"
)

type mockState struct {
	supplies map[[20]byte]uint64
	balances map[[40]byte]uint64
	config   *MarketConfig
	tokens   map[string]*big.Int
	accounts map[string]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		supplies: make(map[[20]byte]uint64),
		balances: make(map[[40]byte]uint64),
		tokens:   make(map[string]*big.Int),
		accounts: make(map[string]*types.Account),
	}
}

func balanceKey(owner, holder [20]byte) [40]byte {
	var key [40]byte
	copy(key[:20], owner[:])
	copy(key[20:], holder[:])
	return key
}

func (m *mockState) PassSupplyGet(owner [20]byte) (*PassSupply, bool, error) {
	amount, ok := m.supplies[owner]
	if !ok {
		return nil, false, nil
	}
	return &PassSupply{Owner: owner, Amount: amount}, true, nil
}

func (m *mockState) PassSupplyPut(supply *PassSupply) error {
	m.supplies[supply.Owner] = supply.Amount
	return nil
}

func (m *mockState) PassBalanceGet(owner, holder [20]byte) (*PassBalance, bool, error) {
	amount, ok := m.balances[balanceKey(owner, holder)]
	if !ok {
		return nil, false, nil
	}
	return &PassBalance{Owner: owner, Holder: holder, Amount: amount}, true, nil
}

func (m *mockState) PassBalancePut(balance *PassBalance) error {
	m.balances[balanceKey(balance.Owner, balance.Holder)] = balance.Amount
	return nil
}

func (m *mockState) MarketConfigGet() (*MarketConfig, bool, error) {
	if m.config == nil {
		return nil, false, nil
	}
	return m.config.Clone(), true, nil
}

func (m *mockState) MarketConfigPut(cfg *MarketConfig) error {
	m.config = cfg.Clone()
	return nil
}

func (m *mockState) TokenBalance(addr []byte, symbol string) (*big.Int, error) {
	if bal, ok := m.tokens[symbol+"/"+string(addr)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetTokenBalance(addr []byte, symbol string, amount *big.Int) error {
	m.tokens[symbol+"/"+string(addr)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	if account, ok := m.accounts[string(addr)]; ok {
		return account.Clone(), nil
	}
	return nil, nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[string(addr)] = account.Clone()
	return nil
}

func (m *mockState) tokenBalance(t *testing.T, addr [20]byte, symbol string) uint64 {
	t.Helper()
	bal, err := m.TokenBalance(addr[:], symbol)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	if !bal.IsUint64() {
		t.Fatalf("token balance of %x out of range", addr)
	}
	return bal.Uint64()
}

func (m *mockState) nativeBalance(t *testing.T, addr [20]byte) uint64 {
	t.Helper()
	account, err := m.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account == nil || account.BalanceNative == nil {
		return 0
	}
	if !account.BalanceNative.IsUint64() {
		t.Fatalf("native balance of %x out of range", addr)
	}
	return account.BalanceNative.Uint64()
}

func (m *mockState) fundToken(addr [20]byte, symbol string, amount uint64) {
	m.tokens[symbol+"/"+string(addr[:])] = new(big.Int).SetUint64(amount)
}

func (m *mockState) fundNative(addr [20]byte, amount uint64) {
	m.accounts[string(addr[:])] = &types.Account{BalanceNative: new(big.Int).SetUint64(amount)}
}

func testAddr(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

var (
	testOwner        = testAddr(0x01)
	testBuyer        = testAddr(0x02)
	testAdmin        = testAddr(0x03)
	testEscrowToken  = testAddr(0x04)
	testEscrowNative = testAddr(0x05)
	testFeeWallet    = testAddr(0x06)
	testStranger     = testAddr(0x07)
)

const testSymbol = "USDQ"

func testConfig() *MarketConfig {
	return &MarketConfig{
		Admin:              testAdmin,
		PaymentToken:       testSymbol,
		EscrowTokenWallet:  testEscrowToken,
		EscrowNativeWallet: testEscrowNative,
		ProtocolFeeBps:     100,
		OwnerFeeBps:        100,
		ProtocolFeeWallet:  testFeeWallet,
	}
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *events.MemoryEmitter) {
	t.Helper()
	state := newMockState()
	emitter := events.NewMemoryEmitter()
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	return engine, state, emitter
}

func mustIssue(t *testing.T, engine *Engine, owner [20]byte, amount uint64) {
	t.Helper()
	if _, err := engine.Issue(owner, amount); err != nil {
		t.Fatalf("issue: %v", err)
	}
}

func TestIssueSeedsMarket(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	receipt, err := engine.Issue(testOwner, 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if receipt.Supply != 1 || receipt.Balance != 1 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	supply, err := engine.Supply(testOwner)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply != 1 {
		t.Fatalf("supply = %d, want 1", supply)
	}
	balance, err := engine.Balance(testOwner, testOwner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1 {
		t.Fatalf("owner balance = %d, want 1", balance)
	}
	evts := emitter.Events()
	if len(evts) != 1 || evts[0].EventType() != EventTypeIssued {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestIssueRejectsZeroAmount(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.Issue(testOwner, 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestIssueIsOneTime(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	if _, err := engine.Issue(testOwner, 1); !errors.Is(err, ErrAlreadyIssued) {
		t.Fatalf("expected ErrAlreadyIssued, got %v", err)
	}
	supply, _ := engine.Supply(testOwner)
	if supply != 1 {
		t.Fatalf("supply = %d after failed re-issue, want 1", supply)
	}
}

func TestBuyRequiresSeededMarket(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	state.fundToken(testBuyer, testSymbol, 10_000_000)
	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 1); !errors.Is(err, ErrZeroSupply) {
		t.Fatalf("expected ErrZeroSupply, got %v", err)
	}
	// The owner gets no shortcut either: Issue is the only seeding path.
	state.fundToken(testOwner, testSymbol, 10_000_000)
	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testOwner, 1); !errors.Is(err, ErrZeroSupply) {
		t.Fatalf("expected ErrZeroSupply for the owner, got %v", err)
	}
}

func TestBuyTokenRail(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	state.fundToken(testBuyer, testSymbol, 10_000_000)

	receipt, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 10)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if receipt.Price != 2_406_250 {
		t.Fatalf("price = %d, want 2406250", receipt.Price)
	}
	if receipt.ProtocolFee != 24_063 || receipt.OwnerFee != 24_063 {
		t.Fatalf("fees = %d/%d, want 24063/24063", receipt.ProtocolFee, receipt.OwnerFee)
	}
	if receipt.Supply != 11 || receipt.Balance != 10 {
		t.Fatalf("ledger = supply %d balance %d, want 11/10", receipt.Supply, receipt.Balance)
	}
	if got := state.tokenBalance(t, testBuyer, testSymbol); got != 7_545_624 {
		t.Fatalf("buyer funds = %d, want 7545624", got)
	}
	if got := state.tokenBalance(t, testEscrowToken, testSymbol); got != 2_406_250 {
		t.Fatalf("escrow = %d, want 2406250", got)
	}
	if got := state.tokenBalance(t, testFeeWallet, testSymbol); got != 24_063 {
		t.Fatalf("protocol fee wallet = %d, want 24063", got)
	}
	if got := state.tokenBalance(t, testOwner, testSymbol); got != 24_063 {
		t.Fatalf("owner fee payout = %d, want 24063", got)
	}

	// A second buy at the shifted supply accumulates fees and escrow.
	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 1); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	if got := state.tokenBalance(t, testEscrowToken, testSymbol); got != 3_162_500 {
		t.Fatalf("escrow after second buy = %d, want 3162500", got)
	}
	if got := state.tokenBalance(t, testFeeWallet, testSymbol); got != 31_626 {
		t.Fatalf("protocol fees after second buy = %d, want 31626", got)
	}
	if got := state.tokenBalance(t, testOwner, testSymbol); got != 31_626 {
		t.Fatalf("owner fees after second buy = %d, want 31626", got)
	}
	if got := state.tokenBalance(t, testBuyer, testSymbol); got != 6_774_248 {
		t.Fatalf("buyer funds after second buy = %d, want 6774248", got)
	}

	evts := emitter.Events()
	if len(evts) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evts))
	}
	if evts[1].EventType() != EventTypeBought || evts[2].EventType() != EventTypeBought {
		t.Fatalf("unexpected event types: %s, %s", evts[1].EventType(), evts[2].EventType())
	}
	assertLedgerConsistent(t, engine, state, testOwner)
}

func TestBuyNativeRail(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	state.fundNative(testBuyer, 10_000_000_000)

	receipt, err := engine.Buy(testConfig(), RailNative, testOwner, testBuyer, 2)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if receipt.Price != 3_125_000 {
		t.Fatalf("price = %d, want 3125000", receipt.Price)
	}
	if receipt.ProtocolFee != 31_250 || receipt.OwnerFee != 31_250 {
		t.Fatalf("fees = %d/%d, want 31250/31250", receipt.ProtocolFee, receipt.OwnerFee)
	}
	if got := state.nativeBalance(t, testBuyer); got != 10_000_000_000-3_187_500 {
		t.Fatalf("buyer native = %d", got)
	}
	if got := state.nativeBalance(t, testEscrowNative); got != 3_125_000 {
		t.Fatalf("escrow native = %d, want 3125000", got)
	}
	// On the native rail the protocol fee lands on the admin account.
	if got := state.nativeBalance(t, testAdmin); got != 31_250 {
		t.Fatalf("admin native = %d, want 31250", got)
	}
	if got := state.nativeBalance(t, testOwner); got != 31_250 {
		t.Fatalf("owner native = %d, want 31250", got)
	}
	assertLedgerConsistent(t, engine, state, testOwner)
}

func TestBuyInsufficientFundsLeavesStateUntouched(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	// Exactly the price but not the fees: the price leg stages fine, the
	// protocol fee leg must fail and nothing may reach state.
	state.fundToken(testBuyer, testSymbol, 6_250)

	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := state.tokenBalance(t, testBuyer, testSymbol); got != 6_250 {
		t.Fatalf("buyer funds moved on failed trade: %d", got)
	}
	if got := state.tokenBalance(t, testEscrowToken, testSymbol); got != 0 {
		t.Fatalf("escrow credited on failed trade: %d", got)
	}
	supply, _ := engine.Supply(testOwner)
	if supply != 1 {
		t.Fatalf("supply = %d after failed trade, want 1", supply)
	}
	balance, _ := engine.Balance(testOwner, testBuyer)
	if balance != 0 {
		t.Fatalf("buyer pass balance = %d after failed trade, want 0", balance)
	}
	for _, evt := range emitter.Events() {
		if evt.EventType() == EventTypeBought {
			t.Fatalf("buy event emitted for failed trade")
		}
	}
}

func TestBuyRejectsZeroAmount(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestBuyUnknownRail(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	if _, err := engine.Buy(testConfig(), Rail(9), testOwner, testBuyer, 1); !errors.Is(err, ErrUnknownRail) {
		t.Fatalf("expected ErrUnknownRail, got %v", err)
	}
}

func TestSellTokenRail(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	state.fundToken(testBuyer, testSymbol, 10_000_000)
	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 10); err != nil {
		t.Fatalf("buy 10: %v", err)
	}
	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 1); err != nil {
		t.Fatalf("buy 1: %v", err)
	}

	receipt, err := engine.Sell(testConfig(), RailToken, testOwner, testBuyer, 1)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// Priced at the post-sale supply level: the same 756250 the last buy cost.
	if receipt.Price != 756_250 {
		t.Fatalf("sell price = %d, want 756250", receipt.Price)
	}
	if receipt.ProtocolFee != 7_563 || receipt.OwnerFee != 7_563 {
		t.Fatalf("sell fees = %d/%d, want 7563/7563", receipt.ProtocolFee, receipt.OwnerFee)
	}
	if receipt.Supply != 11 || receipt.Balance != 10 {
		t.Fatalf("ledger = supply %d balance %d, want 11/10", receipt.Supply, receipt.Balance)
	}
	if got := state.tokenBalance(t, testBuyer, testSymbol); got != 6_774_248+741_124 {
		t.Fatalf("seller proceeds = %d, want %d", got, 6_774_248+741_124)
	}
	if got := state.tokenBalance(t, testEscrowToken, testSymbol); got != 2_406_250 {
		t.Fatalf("escrow after sell = %d, want 2406250", got)
	}
	if got := state.tokenBalance(t, testFeeWallet, testSymbol); got != 39_189 {
		t.Fatalf("protocol fees after sell = %d, want 39189", got)
	}
	if got := state.tokenBalance(t, testOwner, testSymbol); got != 39_189 {
		t.Fatalf("owner fees after sell = %d, want 39189", got)
	}

	evts := emitter.Events()
	if evts[len(evts)-1].EventType() != EventTypeSold {
		t.Fatalf("last event = %s, want %s", evts[len(evts)-1].EventType(), EventTypeSold)
	}
	assertLedgerConsistent(t, engine, state, testOwner)
}

func TestSellKeepsLastPass(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	if _, err := engine.Sell(testConfig(), RailToken, testOwner, testOwner, 1); !errors.Is(err, ErrLastPass) {
		t.Fatalf("expected ErrLastPass, got %v", err)
	}
	// Selling more than the supply trips the same guard.
	if _, err := engine.Sell(testConfig(), RailToken, testOwner, testOwner, 5); !errors.Is(err, ErrLastPass) {
		t.Fatalf("expected ErrLastPass for oversized sell, got %v", err)
	}
}

func TestSellInsufficientPasses(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	state.fundToken(testBuyer, testSymbol, 10_000_000)
	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 2); err != nil {
		t.Fatalf("buy: %v", err)
	}

	if _, err := engine.Sell(testConfig(), RailToken, testOwner, testStranger, 1); !errors.Is(err, ErrInsufficientPasses) {
		t.Fatalf("expected ErrInsufficientPasses, got %v", err)
	}
	supply, _ := engine.Supply(testOwner)
	if supply != 3 {
		t.Fatalf("supply = %d after failed sell, want 3", supply)
	}
	if got := state.tokenBalance(t, testStranger, testSymbol); got != 0 {
		t.Fatalf("stranger credited on failed sell: %d", got)
	}
}

func TestSellRejectsZeroAmount(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustIssue(t, engine, testOwner, 2)
	if _, err := engine.Sell(testConfig(), RailToken, testOwner, testOwner, 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestBuySellRoundTripIsLossy(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	mustIssue(t, engine, testOwner, 1)
	state.fundToken(testBuyer, testSymbol, 100_000_000)

	start := state.tokenBalance(t, testBuyer, testSymbol)
	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 5); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := engine.Sell(testConfig(), RailToken, testOwner, testBuyer, 5); err != nil {
		t.Fatalf("sell: %v", err)
	}
	end := state.tokenBalance(t, testBuyer, testSymbol)
	if end >= start {
		t.Fatalf("round trip profitable: %d -> %d", start, end)
	}
	supply, _ := engine.Supply(testOwner)
	if supply != 1 {
		t.Fatalf("supply = %d after round trip, want 1", supply)
	}
	assertLedgerConsistent(t, engine, state, testOwner)
}

// assertLedgerConsistent checks that supply equals the sum of all holder
// balances in the owner's market.
func assertLedgerConsistent(t *testing.T, engine *Engine, state *mockState, owner [20]byte) {
	t.Helper()
	supply, err := engine.Supply(owner)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	var total uint64
	for key, amount := range state.balances {
		if [20]byte(key[:20]) == owner {
			total += amount
		}
	}
	if total != supply {
		t.Fatalf("supply %d != sum of balances %d", supply, total)
	}
}

func TestQuoteMatchesCurve(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	quote, err := engine.Quote(RailToken, 3, 1)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote != 56_250 {
		t.Fatalf("quote = %d, want 56250", quote)
	}
	if _, err := engine.Quote(Rail(9), 3, 1); !errors.Is(err, ErrUnknownRail) {
		t.Fatalf("expected ErrUnknownRail, got %v", err)
	}
}

func TestInitMarketConfigIsOneTime(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.InitMarketConfig(testConfig()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := engine.InitMarketConfig(testConfig()); !errors.Is(err, ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got %v", err)
	}
	cfg, err := engine.MarketConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Admin != testAdmin || cfg.PaymentToken != testSymbol {
		t.Fatalf("unexpected stored config: %+v", cfg)
	}
}

func TestInitMarketConfigValidates(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	cfg := testConfig()
	cfg.Admin = [20]byte{}
	if err := engine.InitMarketConfig(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	cfg = testConfig()
	cfg.ProtocolFeeBps = MaxFeeBps + 1
	if err := engine.InitMarketConfig(cfg); !errors.Is(err, ErrFeeBpsTooHigh) {
		t.Fatalf("expected ErrFeeBpsTooHigh, got %v", err)
	}
}

func TestMarketConfigMissing(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.MarketConfig(); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestConfigSettersAreAdminOnly(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	if err := engine.InitMarketConfig(testConfig()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := engine.SetProtocolFeeBps(testStranger, 50); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := engine.SetProtocolFeeBps(testAdmin, MaxFeeBps+1); !errors.Is(err, ErrFeeBpsTooHigh) {
		t.Fatalf("expected ErrFeeBpsTooHigh, got %v", err)
	}
	if err := engine.SetProtocolFeeBps(testAdmin, 50); err != nil {
		t.Fatalf("set protocol bps: %v", err)
	}
	if err := engine.SetOwnerFeeBps(testAdmin, 75); err != nil {
		t.Fatalf("set owner bps: %v", err)
	}
	if err := engine.SetProtocolFeeWallet(testAdmin, [20]byte{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero wallet, got %v", err)
	}
	if err := engine.SetProtocolFeeWallet(testAdmin, testStranger); err != nil {
		t.Fatalf("set fee wallet: %v", err)
	}
	cfg, err := engine.MarketConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.ProtocolFeeBps != 50 || cfg.OwnerFeeBps != 75 || cfg.ProtocolFeeWallet != testStranger {
		t.Fatalf("updates not applied: %+v", cfg)
	}
	for _, evt := range emitter.Events()[1:] {
		if evt.EventType() != EventTypeConfigUpdated {
			t.Fatalf("unexpected event type %s", evt.EventType())
		}
	}
}

func TestEngineRequiresState(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Issue(testOwner, 1); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
	if _, err := engine.Buy(testConfig(), RailToken, testOwner, testBuyer, 1); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
}
