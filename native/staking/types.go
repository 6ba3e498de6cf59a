package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const moduleName = "staking"

// Scale is the fixed-point factor applied to the reward-per-token accumulator.
// All divisions against it truncate toward zero.
var Scale = big.NewInt(1_000_000_000_000_000_000)

// LedgerSnapshot holds the global accumulator state for one pool. TotalStaked
// always equals the sum of every position's balance; RewardPerTokenStored
// never decreases.
type LedgerSnapshot struct {
	TotalStaked          *big.Int
	RewardRate           *big.Int
	PeriodFinish         uint64
	RewardPerTokenStored *big.Int
	LastUpdateTime       uint64
}

// Normalize replaces nil amounts with zero so callers can mutate the snapshot
// without nil checks.
func (s *LedgerSnapshot) Normalize() *LedgerSnapshot {
	if s.TotalStaked == nil {
		s.TotalStaked = new(big.Int)
	}
	if s.RewardRate == nil {
		s.RewardRate = new(big.Int)
	}
	if s.RewardPerTokenStored == nil {
		s.RewardPerTokenStored = new(big.Int)
	}
	return s
}

// Position tracks one account's stake and its settled-but-unclaimed reward,
// together with the accumulator snapshot taken at its last interaction.
type Position struct {
	Balance            *big.Int
	RewardPerTokenPaid *big.Int
	Reward             *big.Int
}

// Normalize replaces nil amounts with zero.
func (p *Position) Normalize() *Position {
	if p.Balance == nil {
		p.Balance = new(big.Int)
	}
	if p.RewardPerTokenPaid == nil {
		p.RewardPerTokenPaid = new(big.Int)
	}
	if p.Reward == nil {
		p.Reward = new(big.Int)
	}
	return p
}

// PoolEntry is the registry's record for a deposit token: the ledger custody
// address plus the pending funding parameters and the last provisioning time.
type PoolEntry struct {
	Pool          common.Address
	RewardAmount  *big.Int
	Duration      uint64
	ProvisionedAt uint64
}

// Normalize replaces a nil pending amount with zero.
func (e *PoolEntry) Normalize() *PoolEntry {
	if e.RewardAmount == nil {
		e.RewardAmount = new(big.Int)
	}
	return e
}

// LedgerState is the persistence surface the ledger engine runs against.
// Lookups for unknown pools or accounts return zeroed records, never nil.
type LedgerState interface {
	Ledger(token common.Address) (*LedgerSnapshot, error)
	PutLedger(token common.Address, snap *LedgerSnapshot) error
	Position(token, account common.Address) (*Position, error)
	PutPosition(token, account common.Address, pos *Position) error
}

// RegistryState extends the ledger surface with the registry's pool book.
type RegistryState interface {
	LedgerState
	PoolEntry(token common.Address) (*PoolEntry, bool, error)
	PutPoolEntry(token common.Address, entry *PoolEntry) error
	PoolList() ([]common.Address, error)
	AppendPool(token common.Address) error
}

// TokenBank is the custody surface the staking engines move funds through.
type TokenBank interface {
	BalanceOf(token, holder common.Address) (*big.Int, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
	TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error
	Permit(token, owner, spender common.Address, value *big.Int, deadline, now uint64, sig []byte) error
}

// PoolAddress derives the custody address holding a pool's deposit and reward
// token balances. The derivation is stable across restarts so funded pools
// keep their custody after a redeploy of the daemon.
func PoolAddress(depositToken common.Address) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("stakehub/pool/"), depositToken.Bytes())[12:])
}

// RegistryAddress is the module account holding reward-token custody awaiting
// distribution into pools.
var RegistryAddress = common.BytesToAddress(ethcrypto.Keccak256([]byte("stakehub/registry"))[12:])
