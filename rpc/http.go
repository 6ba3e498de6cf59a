package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"stakehub/native/staking"
	"stakehub/native/token"
	"stakehub/observability"
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
)

// Server exposes the staking ledgers, pool registry and entry point over a
// single JSON-RPC endpoint. One mutex serializes every operation, standing in
// for the host-environment ordering the engines assume: each call commits in
// full before the next observes state.
type Server struct {
	registry *staking.Registry
	entry    *staking.EntryPoint
	bank     *token.Bank

	mu        sync.Mutex
	authToken string
}

// NewServer constructs a server over the wired engines. Manager methods
// require the given bearer token; an empty token locks them out entirely.
func NewServer(registry *staking.Registry, entry *staking.EntryPoint, bank *token.Bank, authToken string) *Server {
	return &Server{
		registry:  registry,
		entry:     entry,
		bank:      bank,
		authToken: strings.TrimSpace(authToken),
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

// ServeHTTP is the main request handler; it parses the envelope and routes to
// the method handlers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	outcome := s.dispatch(w, r, req)
	observability.ModuleMetrics().Observe(methodModule(req.Method), req.Method, outcome, time.Since(start))
}

func methodModule(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return method
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Method {
	case "staking_stake":
		return s.handleStake(w, r, req)
	case "staking_unstake":
		return s.handleUnstake(w, r, req)
	case "staking_claim":
		return s.handleClaim(w, r, req)
	case "staking_stakeWithPermit":
		return s.handleStakeWithPermit(w, r, req)
	case "staking_addLiquidityAndStake":
		return s.handleAddLiquidityAndStake(w, r, req)
	case "staking_totalSupply":
		return s.handleTotalSupply(w, r, req)
	case "staking_balanceOf":
		return s.handleBalanceOf(w, r, req)
	case "staking_earned":
		return s.handleEarned(w, r, req)
	case "manager_deploy":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return "unauthorized"
		}
		return s.handleManagerDeploy(w, r, req)
	case "manager_update":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return "unauthorized"
		}
		return s.handleManagerUpdate(w, r, req)
	case "manager_notifyRewardAmount":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return "unauthorized"
		}
		return s.handleManagerNotify(w, r, req)
	case "token_balanceOf":
		return s.handleTokenBalanceOf(w, r, req)
	case "token_approve":
		return s.handleTokenApprove(w, r, req)
	case "manager_getStakingToken":
		return s.handleManagerGetStakingToken(w, r, req)
	case "manager_rewardsToken":
		return s.handleManagerRewardsToken(w, r, req)
	case "manager_listPools":
		return s.handleManagerListPools(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return "not_found"
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
