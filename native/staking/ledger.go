package staking

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakehub/core/events"
	nativecommon "stakehub/native/common"
)

// Ledger is the reward-accrual engine for a single deposit token. It owns the
// pool's staked balances and the time-weighted reward-per-token accumulator,
// and settles each account's entitlement lazily whenever that account touches
// the ledger.
//
// The engine is not safe for concurrent use; callers serialize operations.
type Ledger struct {
	state   LedgerState
	bank    TokenBank
	emitter events.Emitter
	pauses  nativecommon.PauseView
	clock   func() time.Time

	stakingToken common.Address
	rewardToken  common.Address
	poolAddress  common.Address
}

// NewLedger constructs a ledger for the given deposit token paying out the
// shared reward token. Custody lives under PoolAddress(stakingToken).
func NewLedger(state LedgerState, bank TokenBank, stakingToken, rewardToken common.Address) *Ledger {
	return &Ledger{
		state:        state,
		bank:         bank,
		emitter:      events.NoopEmitter{},
		clock:        time.Now,
		stakingToken: stakingToken,
		rewardToken:  rewardToken,
		poolAddress:  PoolAddress(stakingToken),
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetClock overrides the time source. Tests use this to advance the emission
// schedule deterministically.
func (l *Ledger) SetClock(clock func() time.Time) {
	if clock != nil {
		l.clock = clock
	}
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// StakingToken returns the deposit token this ledger accounts for.
func (l *Ledger) StakingToken() common.Address { return l.stakingToken }

// RewardToken returns the reward token this ledger pays out.
func (l *Ledger) RewardToken() common.Address { return l.rewardToken }

// PoolAddress returns the custody account holding this pool's deposit and
// reward balances.
func (l *Ledger) PoolAddress() common.Address { return l.poolAddress }

func (l *Ledger) now() uint64 {
	return uint64(l.clock().Unix())
}

// lastTimeRewardApplicable clamps accrual at the end of the emission window.
func lastTimeRewardApplicable(now, periodFinish uint64) uint64 {
	if now < periodFinish {
		return now
	}
	return periodFinish
}

// rewardPerToken extends the stored accumulator by the emission since the last
// refresh. With nothing staked the accumulator does not advance: elapsed but
// unattributed emission is forfeited, not carried forward.
func rewardPerToken(snap *LedgerSnapshot, now uint64) *big.Int {
	stored := new(big.Int).Set(snap.RewardPerTokenStored)
	if snap.TotalStaked.Sign() == 0 {
		return stored
	}
	applicable := lastTimeRewardApplicable(now, snap.PeriodFinish)
	if applicable <= snap.LastUpdateTime {
		return stored
	}
	elapsed := new(big.Int).SetUint64(applicable - snap.LastUpdateTime)
	delta := new(big.Int).Mul(elapsed, snap.RewardRate)
	delta.Mul(delta, Scale)
	delta.Quo(delta, snap.TotalStaked)
	return stored.Add(stored, delta)
}

// settled computes the account's total entitlement: the already-settled reward
// plus the balance-weighted accumulator delta since its last interaction.
// Division truncates toward zero.
func settled(snap *LedgerSnapshot, pos *Position, now uint64) *big.Int {
	perToken := rewardPerToken(snap, now)
	delta := new(big.Int).Sub(perToken, pos.RewardPerTokenPaid)
	delta.Mul(delta, pos.Balance)
	delta.Quo(delta, Scale)
	return delta.Add(delta, pos.Reward)
}

// refresh advances the global accumulator and, when a position is in scope,
// folds the accrued delta into its settled reward. Invoked at the top of every
// state-changing operation so no stale accumulator is ever read.
func (l *Ledger) refresh(snap *LedgerSnapshot, pos *Position) {
	now := l.now()
	snap.RewardPerTokenStored = rewardPerToken(snap, now)
	snap.LastUpdateTime = lastTimeRewardApplicable(now, snap.PeriodFinish)
	if pos != nil {
		pos.Reward = settled(snap, pos, now)
		pos.RewardPerTokenPaid = new(big.Int).Set(snap.RewardPerTokenStored)
	}
}

func (l *Ledger) load(account common.Address) (*LedgerSnapshot, *Position, error) {
	snap, err := l.state.Ledger(l.stakingToken)
	if err != nil {
		return nil, nil, err
	}
	pos, err := l.state.Position(l.stakingToken, account)
	if err != nil {
		return nil, nil, err
	}
	return snap.Normalize(), pos.Normalize(), nil
}

func (l *Ledger) persist(snap *LedgerSnapshot, account common.Address, pos *Position) error {
	if err := l.state.PutLedger(l.stakingToken, snap); err != nil {
		return err
	}
	if pos != nil {
		return l.state.PutPosition(l.stakingToken, account, pos)
	}
	return nil
}

// Stake pulls amount of the deposit token from the account into pool custody
// via a pre-authorized transfer and credits the account's staked balance. The
// custody move and the balance update commit within the same operation.
func (l *Ledger) Stake(account common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if l.bank == nil {
		return ErrNilBank
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrStakeZero
	}
	snap, pos, err := l.load(account)
	if err != nil {
		return err
	}
	l.refresh(snap, pos)
	if err := l.bank.TransferFrom(l.stakingToken, l.poolAddress, account, l.poolAddress, amount); err != nil {
		return err
	}
	return l.credit(snap, account, pos, amount)
}

// CreditStake records a stake whose deposit tokens the caller has already
// moved into pool custody. The entry point uses this after the liquidity
// adapter mints directly to the pool.
func (l *Ledger) CreditStake(account common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrStakeZero
	}
	snap, pos, err := l.load(account)
	if err != nil {
		return err
	}
	l.refresh(snap, pos)
	return l.credit(snap, account, pos, amount)
}

func (l *Ledger) credit(snap *LedgerSnapshot, account common.Address, pos *Position, amount *big.Int) error {
	pos.Balance = new(big.Int).Add(pos.Balance, amount)
	snap.TotalStaked = new(big.Int).Add(snap.TotalStaked, amount)
	if err := l.persist(snap, account, pos); err != nil {
		return err
	}
	l.emitter.Emit(events.Staked{Token: l.stakingToken, Account: account, Amount: new(big.Int).Set(amount)})
	return nil
}

// Unstake debits the account's staked balance and returns the deposit tokens
// from pool custody.
func (l *Ledger) Unstake(account common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if l.bank == nil {
		return ErrNilBank
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrWithdrawZero
	}
	snap, pos, err := l.load(account)
	if err != nil {
		return err
	}
	if pos.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.refresh(snap, pos)
	pos.Balance = new(big.Int).Sub(pos.Balance, amount)
	snap.TotalStaked = new(big.Int).Sub(snap.TotalStaked, amount)
	if err := l.bank.Transfer(l.stakingToken, l.poolAddress, account, amount); err != nil {
		return err
	}
	if err := l.persist(snap, account, pos); err != nil {
		return err
	}
	l.emitter.Emit(events.Withdrawn{Token: l.stakingToken, Account: account, Amount: new(big.Int).Set(amount)})
	return nil
}

// Claim settles and pays out the account's accrued reward. A zero entitlement
// is a no-op success, not an error; the paid amount is returned.
func (l *Ledger) Claim(account common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	if l.bank == nil {
		return nil, ErrNilBank
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	snap, pos, err := l.load(account)
	if err != nil {
		return nil, err
	}
	l.refresh(snap, pos)
	payable := new(big.Int).Set(pos.Reward)
	if payable.Sign() == 0 {
		if err := l.persist(snap, account, pos); err != nil {
			return nil, err
		}
		return payable, nil
	}
	pos.Reward = new(big.Int)
	if err := l.bank.Transfer(l.rewardToken, l.poolAddress, account, payable); err != nil {
		return nil, err
	}
	if err := l.persist(snap, account, pos); err != nil {
		return nil, err
	}
	l.emitter.Emit(events.RewardPaid{Token: l.stakingToken, Account: account, Amount: payable})
	return payable, nil
}

// fund installs or tops up the emission schedule. Callable only through the
// registry, which is the sole funding authority for a pool. When the prior
// window has not elapsed, its unemitted remainder folds into the new rate so
// total emission is conserved.
func (l *Ledger) fund(rewardAmount *big.Int, duration uint64) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if duration == 0 {
		return ErrInvalidDuration
	}
	if rewardAmount == nil {
		rewardAmount = new(big.Int)
	}
	snap, err := l.state.Ledger(l.stakingToken)
	if err != nil {
		return err
	}
	snap.Normalize()
	l.refresh(snap, nil)

	now := l.now()
	durationBig := new(big.Int).SetUint64(duration)
	if now >= snap.PeriodFinish {
		snap.RewardRate = new(big.Int).Quo(rewardAmount, durationBig)
	} else {
		remaining := new(big.Int).SetUint64(snap.PeriodFinish - now)
		remaining.Mul(remaining, snap.RewardRate)
		snap.RewardRate = new(big.Int).Quo(new(big.Int).Add(rewardAmount, remaining), durationBig)
	}

	// The schedule must never promise more than custody holds; truncation
	// above keeps rate*duration at or below the funded amount.
	custody, err := l.bank.BalanceOf(l.rewardToken, l.poolAddress)
	if err != nil {
		return err
	}
	if custody.Cmp(new(big.Int).Mul(snap.RewardRate, durationBig)) < 0 {
		return ErrRewardTooHigh
	}

	snap.LastUpdateTime = now
	snap.PeriodFinish = now + duration
	if err := l.state.PutLedger(l.stakingToken, snap); err != nil {
		return err
	}
	l.emitter.Emit(events.RewardAdded{Token: l.stakingToken, Amount: new(big.Int).Set(rewardAmount)})
	return nil
}

// TotalSupply returns the sum of all staked balances.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	snap, err := l.state.Ledger(l.stakingToken)
	if err != nil {
		return nil, err
	}
	return snap.Normalize().TotalStaked, nil
}

// BalanceOf returns the account's staked balance.
func (l *Ledger) BalanceOf(account common.Address) (*big.Int, error) {
	pos, err := l.state.Position(l.stakingToken, account)
	if err != nil {
		return nil, err
	}
	return pos.Normalize().Balance, nil
}

// Earned computes the account's current entitlement on the fly without
// mutating state.
func (l *Ledger) Earned(account common.Address) (*big.Int, error) {
	snap, pos, err := l.load(account)
	if err != nil {
		return nil, err
	}
	return settled(snap, pos, l.now()), nil
}

// RewardRate returns the current per-second emission rate.
func (l *Ledger) RewardRate() (*big.Int, error) {
	snap, err := l.state.Ledger(l.stakingToken)
	if err != nil {
		return nil, err
	}
	return snap.Normalize().RewardRate, nil
}

// PeriodFinish returns the timestamp at which the current emission window
// ends, or zero when the pool has never been funded.
func (l *Ledger) PeriodFinish() (uint64, error) {
	snap, err := l.state.Ledger(l.stakingToken)
	if err != nil {
		return 0, err
	}
	return snap.PeriodFinish, nil
}
