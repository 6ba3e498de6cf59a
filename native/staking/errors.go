package staking

import "errors"

// The stake/withdraw zero-amount messages are part of the public operation
// surface inherited from the deployed contract interface and are matched
// verbatim by downstream tooling.
var (
	ErrStakeZero           = errors.New("Cannot stake 0")
	ErrWithdrawZero        = errors.New("Cannot withdraw 0")
	ErrInsufficientBalance = errors.New("staking: insufficient staked balance")
	ErrRewardTooHigh       = errors.New("staking: provided reward too high")
	ErrInvalidDuration     = errors.New("staking: reward duration must be positive")
	ErrAlreadyDeployed     = errors.New("staking: staking token already deployed")
	ErrNotDeployed         = errors.New("staking: not deployed")
	ErrNotReady            = errors.New("staking: not ready")
	ErrNilState            = errors.New("staking: state not configured")
	ErrNilBank             = errors.New("staking: token bank not configured")
	ErrAdapterUnavailable  = errors.New("staking: liquidity adapter not configured")
	ErrPairUnknown         = errors.New("staking: no pair registered for base asset")
)
