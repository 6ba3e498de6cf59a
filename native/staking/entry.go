package staking

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakehub/core/events"
	nativecommon "stakehub/native/common"
)

// LiquidityResult reports what a liquidity provision produced: the deposit
// token minted, the amount credited to the recipient, and how much of the
// offered base asset the pair actually consumed.
type LiquidityResult struct {
	DepositToken common.Address
	Minted       *big.Int
	BaseUsed     *big.Int
}

// LiquidityAdapter is the external AMM integration the entry point composes
// with. It is consumed at this boundary, never reimplemented here.
type LiquidityAdapter interface {
	// DepositTokenFor resolves the deposit token minted for a base asset.
	DepositTokenFor(base common.Address) (common.Address, bool)
	// AddLiquidity pulls baseAmount from the supplier, adds liquidity and
	// mints the resulting deposit tokens to the recipient.
	AddLiquidity(base, supplier, recipient common.Address, baseAmount *big.Int) (*LiquidityResult, error)
}

// EntryPoint composes the liquidity adapter with the staking ledgers so a
// user can convert a base asset into a staked position in one operation with
// no intermediate custody gap.
type EntryPoint struct {
	registry *Registry
	adapter  LiquidityAdapter
	bank     TokenBank
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	clock    func() time.Time
}

// NewEntryPoint wires the composition. The adapter may be nil when liquidity
// provisioning is disabled; AddLiquidityAndStake then rejects all calls.
func NewEntryPoint(registry *Registry, adapter LiquidityAdapter, bank TokenBank) *EntryPoint {
	return &EntryPoint{
		registry: registry,
		adapter:  adapter,
		bank:     bank,
		emitter:  events.NoopEmitter{},
		clock:    time.Now,
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *EntryPoint) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the time source used for permit deadlines.
func (e *EntryPoint) SetClock(clock func() time.Time) {
	if clock != nil {
		e.clock = clock
	}
}

func (e *EntryPoint) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// AddLiquidityAndStake adds liquidity for the base asset and stakes the exact
// minted deposit amount for the caller, no rounding or skimming. The adapter
// mints directly into pool custody; if any sub-step fails the whole operation
// fails and no partial liquidity-added-but-not-staked state survives.
func (e *EntryPoint) AddLiquidityAndStake(caller, base common.Address, baseAmount *big.Int) (*LiquidityResult, error) {
	if e.adapter == nil {
		return nil, ErrAdapterUnavailable
	}
	// Checked before the adapter runs: once it pulls the base asset and
	// mints into pool custody those moves cannot be unwound here.
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	depositToken, ok := e.adapter.DepositTokenFor(base)
	if !ok {
		return nil, ErrPairUnknown
	}
	ledger, err := e.registry.Ledger(depositToken)
	if err != nil {
		return nil, err
	}
	result, err := e.adapter.AddLiquidity(base, caller, ledger.PoolAddress(), baseAmount)
	if err != nil {
		return nil, err
	}
	if err := ledger.CreditStake(caller, result.Minted); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.AddLiquidity{
		BaseAsset:     base,
		DepositAsset:  result.DepositToken,
		DepositMinted: new(big.Int).Set(result.Minted),
		BaseUsed:      new(big.Int).Set(result.BaseUsed),
		BaseSupplied:  new(big.Int).Set(baseAmount),
	})
	return result, nil
}

// StakeWithPermit installs a signed allowance for the pool and stakes in the
// same operation. Signature verification is delegated to the token bank.
func (e *EntryPoint) StakeWithPermit(owner, depositToken common.Address, amount *big.Int, deadline uint64, sig []byte) error {
	// Checked before the permit executes so a paused module cannot consume
	// the owner's nonce or install the allowance.
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	ledger, err := e.registry.Ledger(depositToken)
	if err != nil {
		return err
	}
	now := uint64(e.clock().Unix())
	if err := e.bank.Permit(depositToken, owner, ledger.PoolAddress(), amount, deadline, now, sig); err != nil {
		return err
	}
	return ledger.Stake(owner, amount)
}
