package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeStaked captures a deposit-token stake credited to an account.
	TypeStaked = "staking.staked"
	// TypeWithdrawn captures a stake withdrawal returned to an account.
	TypeWithdrawn = "staking.withdrawn"
	// TypeRewardPaid is emitted when settled rewards are paid out to an account.
	TypeRewardPaid = "staking.rewardPaid"
	// TypeRewardAdded signals a new or topped-up emission schedule on a ledger.
	TypeRewardAdded = "staking.rewardAdded"
	// TypeAddLiquidity captures a liquidity provision performed by the adapter.
	TypeAddLiquidity = "staking.addLiquidity"
	// TypeStakeCreation is emitted when the registry provisions a new pool.
	TypeStakeCreation = "staking.stakeCreation"
)

// Staked is emitted after a successful stake. Field order mirrors the public
// operation surface: account first, then amount.
type Staked struct {
	Token   common.Address
	Account common.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Withdrawn is emitted after a successful unstake.
type Withdrawn struct {
	Token   common.Address
	Account common.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (Withdrawn) EventType() string { return TypeWithdrawn }

// RewardPaid is emitted when a claim transfers settled rewards out of custody.
type RewardPaid struct {
	Token   common.Address
	Account common.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (RewardPaid) EventType() string { return TypeRewardPaid }

// RewardAdded is emitted by fund with the newly scheduled reward amount.
type RewardAdded struct {
	Token  common.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (RewardAdded) EventType() string { return TypeRewardAdded }

// AddLiquidity reports the amounts consumed and minted by a liquidity
// provision. BaseUsed is what the pair actually took; BaseSupplied is what the
// caller offered.
type AddLiquidity struct {
	BaseAsset     common.Address
	DepositAsset  common.Address
	DepositMinted *big.Int
	BaseUsed      *big.Int
	BaseSupplied  *big.Int
}

// EventType satisfies the Event interface.
func (AddLiquidity) EventType() string { return TypeAddLiquidity }

// StakeCreation is emitted when the registry deploys a ledger for a deposit
// token.
type StakeCreation struct {
	DepositToken common.Address
	Ledger       common.Address
}

// EventType satisfies the Event interface.
func (StakeCreation) EventType() string { return TypeStakeCreation }
