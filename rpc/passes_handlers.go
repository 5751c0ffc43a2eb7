package rpc

import (
	"encoding/json"
	"fmt"

	"passchain/core/types"
	"passchain/crypto"
	"passchain/native/passes"
)

type tradeSide string

const (
	tradeSideBuy  tradeSide = "buy"
	tradeSideSell tradeSide = "sell"
)

type quoteParams struct {
	Supply uint64 `json:"supply"`
	Amount uint64 `json:"amount"`
}

type issueParams struct {
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

type tradeParams struct {
	Owner  string `json:"owner"`
	Trader string `json:"trader"`
	Amount uint64 `json:"amount"`
	Rail   string `json:"rail,omitempty"`
}

type supplyParams struct {
	Owner string `json:"owner"`
}

type balanceParams struct {
	Owner  string `json:"owner"`
	Holder string `json:"holder"`
}

type setFeeBpsParams struct {
	Caller string `json:"caller"`
	Bps    uint64 `json:"bps"`
}

type setFeeWalletParams struct {
	Caller string `json:"caller"`
	Wallet string `json:"wallet"`
}

type tradeResult struct {
	Owner       string `json:"owner"`
	Trader      string `json:"trader"`
	Rail        string `json:"rail"`
	Amount      uint64 `json:"amount"`
	Price       uint64 `json:"price"`
	ProtocolFee uint64 `json:"protocolFee"`
	OwnerFee    uint64 `json:"ownerFee"`
	Supply      uint64 `json:"supply"`
	Balance     uint64 `json:"balance"`
}

type configResult struct {
	Admin              string `json:"admin"`
	PaymentToken       string `json:"paymentToken"`
	EscrowTokenWallet  string `json:"escrowTokenWallet"`
	EscrowNativeWallet string `json:"escrowNativeWallet"`
	ProtocolFeeBps     uint64 `json:"protocolFeeBps"`
	OwnerFeeBps        uint64 `json:"ownerFeeBps"`
	ProtocolFeeWallet  string `json:"protocolFeeWallet"`
}

type eventResult struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected one params object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func decodeAddr(field, value string) ([20]byte, *RPCError) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("%s: %v", field, err)}
	}
	return addr.Raw(), nil
}

func encodeAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.PassPrefix, addr[:]).String()
}

func parseRail(value string) (passes.Rail, *RPCError) {
	switch value {
	case "", "token":
		return passes.RailToken, nil
	case "native":
		return passes.RailNative, nil
	default:
		return 0, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown rail %q", value)}
	}
}

func receiptResult(receipt *passes.TradeReceipt) *tradeResult {
	return &tradeResult{
		Owner:       encodeAddr(receipt.Owner),
		Trader:      encodeAddr(receipt.Trader),
		Rail:        receipt.Rail.String(),
		Amount:      receipt.Amount,
		Price:       receipt.Price,
		ProtocolFee: receipt.ProtocolFee,
		OwnerFee:    receipt.OwnerFee,
		Supply:      receipt.Supply,
		Balance:     receipt.Balance,
	}
}

func (s *Server) handleGetPrice(req *RPCRequest, rail passes.Rail) (interface{}, *RPCError) {
	var params quoteParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	price, err := s.engine.Quote(rail, params.Supply, params.Amount)
	if err != nil {
		return nil, engineError(err)
	}
	return price, nil
}

func (s *Server) handleSupply(req *RPCRequest) (interface{}, *RPCError) {
	var params supplyParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := decodeAddr("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	supply, err := s.engine.Supply(owner)
	if err != nil {
		return nil, engineError(err)
	}
	return supply, nil
}

func (s *Server) handleBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params balanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := decodeAddr("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	holder, rpcErr := decodeAddr("holder", params.Holder)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.engine.Balance(owner, holder)
	if err != nil {
		return nil, engineError(err)
	}
	return balance, nil
}

func (s *Server) handleConfig(req *RPCRequest) (interface{}, *RPCError) {
	cfg, err := s.engine.MarketConfig()
	if err != nil {
		return nil, engineError(err)
	}
	return &configResult{
		Admin:              encodeAddr(cfg.Admin),
		PaymentToken:       cfg.PaymentToken,
		EscrowTokenWallet:  encodeAddr(cfg.EscrowTokenWallet),
		EscrowNativeWallet: encodeAddr(cfg.EscrowNativeWallet),
		ProtocolFeeBps:     cfg.ProtocolFeeBps,
		OwnerFeeBps:        cfg.OwnerFeeBps,
		ProtocolFeeWallet:  encodeAddr(cfg.ProtocolFeeWallet),
	}, nil
}

func (s *Server) handleEvents(req *RPCRequest) (interface{}, *RPCError) {
	results := []eventResult{}
	if s.feed == nil {
		return results, nil
	}
	for _, evt := range s.feed.Drain() {
		carrier, ok := evt.(interface{ Event() *types.Event })
		if !ok {
			results = append(results, eventResult{Type: evt.EventType()})
			continue
		}
		payload := carrier.Event()
		results = append(results, eventResult{Type: payload.Type, Attributes: payload.Attributes})
	}
	return results, nil
}

func (s *Server) handleIssue(req *RPCRequest) (interface{}, *RPCError) {
	var params issueParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := decodeAddr("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.engine.Issue(owner, params.Amount)
	if err != nil {
		s.metrics.ObserveRejectedTrade("issue")
		return nil, engineError(err)
	}
	return receiptResult(receipt), nil
}

func (s *Server) handleTrade(req *RPCRequest, side tradeSide) (interface{}, *RPCError) {
	var params tradeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := decodeAddr("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	trader, rpcErr := decodeAddr("trader", params.Trader)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rail, rpcErr := parseRail(params.Rail)
	if rpcErr != nil {
		return nil, rpcErr
	}
	cfg, err := s.engine.MarketConfig()
	if err != nil {
		return nil, engineError(err)
	}
	var receipt *passes.TradeReceipt
	switch side {
	case tradeSideBuy:
		receipt, err = s.engine.Buy(cfg, rail, owner, trader, params.Amount)
	case tradeSideSell:
		receipt, err = s.engine.Sell(cfg, rail, owner, trader, params.Amount)
	}
	if err != nil {
		s.metrics.ObserveRejectedTrade(string(side))
		return nil, engineError(err)
	}
	s.metrics.ObserveTrade(string(side), receipt.Rail.String(), encodeAddr(owner),
		receipt.Price, receipt.ProtocolFee, receipt.OwnerFee, receipt.Supply)
	return receiptResult(receipt), nil
}

func (s *Server) handleSetFeeBps(req *RPCRequest, set func([20]byte, uint64) error) (interface{}, *RPCError) {
	var params setFeeBpsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := decodeAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := set(caller, params.Bps); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}

func (s *Server) handleSetProtocolFeeWallet(req *RPCRequest) (interface{}, *RPCError) {
	var params setFeeWalletParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := decodeAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	wallet, rpcErr := decodeAddr("wallet", params.Wallet)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.SetProtocolFeeWallet(caller, wallet); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}
