package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type stakeParams struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type approveParams struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type claimParams struct {
	Token string `json:"token"`
	From  string `json:"from"`
}

type permitStakeParams struct {
	Token     string `json:"token"`
	Owner     string `json:"owner"`
	Amount    string `json:"amount"`
	Deadline  uint64 `json:"deadline"`
	Signature string `json:"signature"`
}

type addLiquidityParams struct {
	Base   string `json:"base"`
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type deployParams struct {
	Token        string `json:"token"`
	RewardAmount string `json:"rewardAmount"`
	Duration     uint64 `json:"duration"`
}

type accountQueryParams struct {
	Token   string `json:"token"`
	Account string `json:"account"`
}

type tokenQueryParams struct {
	Token string `json:"token"`
}

type amountResult struct {
	Amount *big.Int `json:"amount"`
}

type txResult struct {
	OK bool `json:"ok"`
}

type addLiquidityResult struct {
	DepositToken string   `json:"depositToken"`
	Minted       *big.Int `json:"minted"`
	BaseUsed     *big.Int `json:"baseUsed"`
}

type stakingTokenResult struct {
	StakingRewards string   `json:"stakingRewards"`
	RewardAmount   *big.Int `json:"rewardAmount"`
	Duration       uint64   `json:"duration"`
	ProvisionedAt  uint64   `json:"provisionedAt"`
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid %s address", field)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

// writeModuleError surfaces engine rejections. Every failure is synchronous
// and non-retryable with no partial state change, so a plain 400 with the
// module message is the whole story.
func writeModuleError(w http.ResponseWriter, id interface{}, err error) string {
	writeError(w, http.StatusBadRequest, id, codeServerError, err.Error(), nil)
	return "error"
}

func (s *Server) handleStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input stakeParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	from, err := parseAddress("from", input.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	ledger, err := s.registry.Ledger(token)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	if err := ledger.Stake(from, amount); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, txResult{OK: true})
	return "ok"
}

func (s *Server) handleUnstake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input stakeParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	from, err := parseAddress("from", input.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	ledger, err := s.registry.Ledger(token)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	if err := ledger.Unstake(from, amount); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, txResult{OK: true})
	return "ok"
}

func (s *Server) handleClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input claimParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	from, err := parseAddress("from", input.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	ledger, err := s.registry.Ledger(token)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	paid, err := ledger.Claim(from)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, amountResult{Amount: paid})
	return "ok"
}

func (s *Server) handleStakeWithPermit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input permitStakeParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	owner, err := parseAddress("owner", input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	sig, err := hexutil.Decode(strings.TrimSpace(input.Signature))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signature encoding", err.Error())
		return "invalid_params"
	}
	if err := s.entry.StakeWithPermit(owner, token, amount, input.Deadline, sig); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, txResult{OK: true})
	return "ok"
}

func (s *Server) handleAddLiquidityAndStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input addLiquidityParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	base, err := parseAddress("base", input.Base)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	from, err := parseAddress("from", input.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	result, err := s.entry.AddLiquidityAndStake(from, base, amount)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, addLiquidityResult{
		DepositToken: result.DepositToken.Hex(),
		Minted:       result.Minted,
		BaseUsed:     result.BaseUsed,
	})
	return "ok"
}

func (s *Server) handleTotalSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input tokenQueryParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	ledger, err := s.registry.Ledger(token)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	total, err := ledger.TotalSupply()
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, amountResult{Amount: total})
	return "ok"
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input accountQueryParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	account, err := parseAddress("account", input.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	ledger, err := s.registry.Ledger(token)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	balance, err := ledger.BalanceOf(account)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, amountResult{Amount: balance})
	return "ok"
}

func (s *Server) handleEarned(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input accountQueryParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	account, err := parseAddress("account", input.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	ledger, err := s.registry.Ledger(token)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	earned, err := ledger.Earned(account)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, amountResult{Amount: earned})
	return "ok"
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input accountQueryParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	account, err := parseAddress("account", input.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	balance, err := s.bank.BalanceOf(token, account)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, amountResult{Amount: balance})
	return "ok"
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input approveParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	owner, err := parseAddress("owner", input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	spender, err := parseAddress("spender", input.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	if err := s.bank.Approve(token, owner, spender, amount); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, txResult{OK: true})
	return "ok"
}

func (s *Server) handleManagerDeploy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input deployParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	amount, err := parseAmount(input.RewardAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	ledger, err := s.registry.Deploy(token, amount, input.Duration)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]string{"stakingRewards": ledger.PoolAddress().Hex()})
	return "ok"
}

func (s *Server) handleManagerUpdate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input deployParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	amount, err := parseAmount(input.RewardAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	if err := s.registry.Update(token, amount, input.Duration); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, txResult{OK: true})
	return "ok"
}

func (s *Server) handleManagerNotify(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input tokenQueryParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	if err := s.registry.NotifyRewardAmount(token); err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, txResult{OK: true})
	return "ok"
}

func (s *Server) handleManagerGetStakingToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	var input tokenQueryParams
	if !decodeParams(w, req, &input) {
		return "invalid_params"
	}
	token, err := parseAddress("token", input.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	entry, err := s.registry.GetStakingToken(token)
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	writeResult(w, req.ID, stakingTokenResult{
		StakingRewards: entry.Pool.Hex(),
		RewardAmount:   entry.RewardAmount,
		Duration:       entry.Duration,
		ProvisionedAt:  entry.ProvisionedAt,
	})
	return "ok"
}

func (s *Server) handleManagerRewardsToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return "invalid_params"
	}
	writeResult(w, req.ID, map[string]string{"rewardsToken": s.registry.RewardsToken().Hex()})
	return "ok"
}

func (s *Server) handleManagerListPools(w http.ResponseWriter, _ *http.Request, req *RPCRequest) string {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return "invalid_params"
	}
	pools, err := s.registry.Pools()
	if err != nil {
		return writeModuleError(w, req.ID, err)
	}
	hexed := make([]string, 0, len(pools))
	for _, pool := range pools {
		hexed = append(hexed, pool.Hex())
	}
	writeResult(w, req.ID, map[string][]string{"pools": hexed})
	return "ok"
}
