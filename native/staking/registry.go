package staking

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakehub/core/events"
	nativecommon "stakehub/native/common"
)

// Registry provisions and funds one ledger per deposit token. It owns the
// ledgers exclusively: it is the sole writer of their emission schedules,
// while the ledgers stay independently callable for stake, unstake and claim.
//
// Lifecycle per deposit token: Unregistered → Deployed → Funded →
// (window elapses) → Fundable → Funded → …
type Registry struct {
	state   RegistryState
	bank    TokenBank
	emitter events.Emitter
	pauses  nativecommon.PauseView
	clock   func() time.Time

	rewardToken common.Address
	address     common.Address
	ledgers     map[common.Address]*Ledger
}

// NewRegistry constructs a registry distributing the given reward token.
// Reward custody awaiting distribution sits under RegistryAddress.
func NewRegistry(state RegistryState, bank TokenBank, rewardToken common.Address) *Registry {
	return &Registry{
		state:       state,
		bank:        bank,
		emitter:     events.NoopEmitter{},
		clock:       time.Now,
		rewardToken: rewardToken,
		address:     RegistryAddress,
		ledgers:     make(map[common.Address]*Ledger),
	}
}

// SetEmitter configures the event emitter used for registry and ledger
// events. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
	for _, ledger := range r.ledgers {
		ledger.SetEmitter(emitter)
	}
}

// SetClock overrides the time source for the registry and every ledger it
// hands out.
func (r *Registry) SetClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	r.clock = clock
	for _, ledger := range r.ledgers {
		ledger.SetClock(clock)
	}
}

func (r *Registry) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
	for _, ledger := range r.ledgers {
		ledger.SetPauses(p)
	}
}

// RewardsToken returns the shared reward token every pool pays out.
func (r *Registry) RewardsToken() common.Address { return r.rewardToken }

// Address returns the registry's reward custody account.
func (r *Registry) Address() common.Address { return r.address }

func (r *Registry) now() uint64 { return uint64(r.clock().Unix()) }

// Ledger returns the staking ledger for a deployed deposit token.
func (r *Registry) Ledger(token common.Address) (*Ledger, error) {
	if _, ok := r.ledgers[token]; !ok {
		_, found, err := r.state.PoolEntry(token)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotDeployed
		}
		ledger := NewLedger(r.state, r.bank, token, r.rewardToken)
		ledger.SetEmitter(r.emitter)
		ledger.SetClock(r.clock)
		ledger.SetPauses(r.pauses)
		r.ledgers[token] = ledger
	}
	return r.ledgers[token], nil
}

// Deploy provisions a new pool for the deposit token and records its pending
// funding parameters. Funding itself is a separate, explicit step so the
// operator can move reward custody into place first; the deployment time
// starts the first readiness window.
func (r *Registry) Deploy(token common.Address, rewardAmount *big.Int, duration uint64) (*Ledger, error) {
	if r == nil || r.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return nil, err
	}
	if duration == 0 {
		return nil, ErrInvalidDuration
	}
	_, found, err := r.state.PoolEntry(token)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ErrAlreadyDeployed
	}
	entry := (&PoolEntry{
		Pool:          PoolAddress(token),
		RewardAmount:  rewardAmount,
		Duration:      duration,
		ProvisionedAt: r.now(),
	}).Normalize()
	if err := r.state.PutPoolEntry(token, entry); err != nil {
		return nil, err
	}
	if err := r.state.AppendPool(token); err != nil {
		return nil, err
	}
	ledger, err := r.Ledger(token)
	if err != nil {
		return nil, err
	}
	r.emitter.Emit(events.StakeCreation{DepositToken: token, Ledger: entry.Pool})
	return ledger, nil
}

// Update overwrites the pending funding parameters for a deployed pool. The
// new values take effect on the next NotifyRewardAmount call, never
// retroactively.
func (r *Registry) Update(token common.Address, rewardAmount *big.Int, duration uint64) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if duration == 0 {
		return ErrInvalidDuration
	}
	entry, found, err := r.state.PoolEntry(token)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotDeployed
	}
	if rewardAmount == nil {
		rewardAmount = new(big.Int)
	}
	entry.RewardAmount = rewardAmount
	entry.Duration = duration
	return r.state.PutPoolEntry(token, entry.Normalize())
}

// NotifyRewardAmount transfers the pending reward amount from registry
// custody into the pool and starts its emission window. It refuses to re-fund
// before the previous window has fully elapsed, and clears the pending
// parameters afterwards so a stale configuration cannot fund twice.
func (r *Registry) NotifyRewardAmount(token common.Address) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	entry, found, err := r.state.PoolEntry(token)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotDeployed
	}
	entry.Normalize()
	if entry.Duration == 0 || entry.RewardAmount.Sign() == 0 {
		return ErrNotReady
	}
	if r.now() < entry.ProvisionedAt+entry.Duration {
		return ErrNotReady
	}
	ledger, err := r.Ledger(token)
	if err != nil {
		return err
	}
	if err := r.bank.Transfer(r.rewardToken, r.address, entry.Pool, entry.RewardAmount); err != nil {
		return err
	}
	if err := ledger.fund(entry.RewardAmount, entry.Duration); err != nil {
		return err
	}
	entry.ProvisionedAt = r.now()
	entry.RewardAmount = new(big.Int)
	entry.Duration = 0
	return r.state.PutPoolEntry(token, entry)
}

// GetStakingToken returns the pool record for a deposit token: the ledger
// custody address and the pending reward amount and duration.
func (r *Registry) GetStakingToken(token common.Address) (*PoolEntry, error) {
	entry, found, err := r.state.PoolEntry(token)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotDeployed
	}
	return entry.Normalize(), nil
}

// Pools lists every deployed deposit token in deployment order.
func (r *Registry) Pools() ([]common.Address, error) {
	return r.state.PoolList()
}
