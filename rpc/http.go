package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"passchain/core/events"
	"passchain/core/state"
	"passchain/native/passes"
	"passchain/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeTradeRejected  = -32050
)

// AuthTokenEnv names the environment variable carrying the bearer token that
// guards mutating methods.
const AuthTokenEnv = "PASSD_RPC_TOKEN"

type Server struct {
	engine    *passes.Engine
	state     *state.Manager
	feed      *events.MemoryEmitter
	metrics   *metrics.PassesMetrics
	authToken string
	logger    *slog.Logger
}

// NewServer builds the JSON-RPC surface over the pass-market engine. The
// event feed is optional; when nil, passes_events returns an empty list.
func NewServer(engine *passes.Engine, st *state.Manager, feed *events.MemoryEmitter) *Server {
	return &Server{
		engine:    engine,
		state:     st,
		feed:      feed,
		metrics:   metrics.Passes(),
		authToken: strings.TrimSpace(os.Getenv(AuthTokenEnv)),
		logger:    slog.Default().With("component", "rpc"),
	}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(header[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func isMutating(method string) bool {
	switch method {
	case "passes_issue", "passes_buy", "passes_sell",
		"passes_setProtocolFeeBps", "passes_setOwnerFeeBps", "passes_setProtocolFeeWallet":
		return true
	default:
		return false
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", nil)
		return
	}
	if isMutating(req.Method) && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", nil)
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		s.logger.Warn("rpc call failed", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		writeError(w, http.StatusOK, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(req *RPCRequest) (interface{}, *RPCError) {
	switch req.Method {
	case "passes_getPrice":
		return s.handleGetPrice(req, passes.RailToken)
	case "passes_getPriceNative":
		return s.handleGetPrice(req, passes.RailNative)
	case "passes_supply":
		return s.handleSupply(req)
	case "passes_balance":
		return s.handleBalance(req)
	case "passes_config":
		return s.handleConfig(req)
	case "passes_events":
		return s.handleEvents(req)
	case "passes_issue":
		return s.handleIssue(req)
	case "passes_buy":
		return s.handleTrade(req, tradeSideBuy)
	case "passes_sell":
		return s.handleTrade(req, tradeSideSell)
	case "passes_setProtocolFeeBps":
		return s.handleSetFeeBps(req, s.engine.SetProtocolFeeBps)
	case "passes_setOwnerFeeBps":
		return s.handleSetFeeBps(req, s.engine.SetOwnerFeeBps)
	case "passes_setProtocolFeeWallet":
		return s.handleSetProtocolFeeWallet(req)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: "method not found"}
	}
}

// engineError maps engine failures onto JSON-RPC error objects. Precondition
// violations keep their taxonomy visible to callers via the data field.
func engineError(err error) *RPCError {
	switch {
	case errors.Is(err, passes.ErrZeroSupply),
		errors.Is(err, passes.ErrZeroAmount),
		errors.Is(err, passes.ErrZeroPrice),
		errors.Is(err, passes.ErrLastPass),
		errors.Is(err, passes.ErrInsufficientPasses),
		errors.Is(err, passes.ErrAlreadyIssued),
		errors.Is(err, passes.ErrInsufficientFunds),
		errors.Is(err, passes.ErrMathOverflow):
		return &RPCError{Code: codeTradeRejected, Message: err.Error()}
	case errors.Is(err, passes.ErrNotAdmin):
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, passes.ErrUnknownRail),
		errors.Is(err, passes.ErrFeeBpsTooHigh),
		errors.Is(err, passes.ErrInvalidConfig),
		errors.Is(err, passes.ErrConfigExists),
		errors.Is(err, passes.ErrConfigNotFound):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}
