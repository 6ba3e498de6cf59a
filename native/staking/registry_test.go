package staking

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"stakehub/core/events"
	"stakehub/core/state"
	"stakehub/native/token"
	"stakehub/storage"
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) { r.events = append(r.events, e) }

func (r *recordingEmitter) last() events.Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type registryFixture struct {
	bank     *token.Bank
	registry *Registry
	emitter  *recordingEmitter
	clock    *manualClock
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	bank := token.NewBank(manager)
	book := NewBook(manager)
	clock := &manualClock{now: 1_000_000}
	emitter := &recordingEmitter{}
	registry := NewRegistry(book, bank, rewardToken)
	registry.SetClock(clock.Now)
	registry.SetEmitter(emitter)
	return &registryFixture{bank: bank, registry: registry, emitter: emitter, clock: clock}
}

const threeMonths = uint64(60 * 60 * 24 * 7 * 4 * 3)

func TestDeployCreatesPool(t *testing.T) {
	f := newRegistryFixture(t)
	amount := new(big.Int)
	amount.SetString("100000000000000000000", 10) // 100e18
	ledger, err := f.registry.Deploy(depositToken, amount, threeMonths)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if ledger.StakingToken() != depositToken {
		t.Fatalf("ledger bound to wrong token %s", ledger.StakingToken())
	}

	entry, err := f.registry.GetStakingToken(depositToken)
	if err != nil {
		t.Fatalf("get staking token: %v", err)
	}
	if entry.Pool == (common.Address{}) {
		t.Fatal("expected a pool custody address")
	}
	if entry.RewardAmount.Cmp(amount) != 0 {
		t.Fatalf("expected pending amount %s, got %s", amount, entry.RewardAmount)
	}
	if entry.Duration != threeMonths {
		t.Fatalf("expected pending duration %d, got %d", threeMonths, entry.Duration)
	}

	creation, ok := f.emitter.last().(events.StakeCreation)
	if !ok {
		t.Fatalf("expected StakeCreation event, got %T", f.emitter.last())
	}
	if creation.DepositToken != depositToken || creation.Ledger != entry.Pool {
		t.Fatalf("unexpected event payload %+v", creation)
	}
}

func TestDeployTwiceFails(t *testing.T) {
	f := newRegistryFixture(t)
	if _, err := f.registry.Deploy(depositToken, big.NewInt(1000), threeMonths); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	_, err := f.registry.Deploy(depositToken, big.NewInt(1000), threeMonths)
	if !errors.Is(err, ErrAlreadyDeployed) {
		t.Fatalf("expected ErrAlreadyDeployed, got %v", err)
	}
}

func TestUpdateRequiresDeploy(t *testing.T) {
	f := newRegistryFixture(t)
	err := f.registry.Update(depositToken, big.NewInt(1), 10)
	if !errors.Is(err, ErrNotDeployed) {
		t.Fatalf("expected ErrNotDeployed, got %v", err)
	}
}

func TestUpdateOverwritesPending(t *testing.T) {
	f := newRegistryFixture(t)
	if _, err := f.registry.Deploy(depositToken, big.NewInt(1000), threeMonths); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if err := f.registry.Update(depositToken, big.NewInt(1010), threeMonths+86_400); err != nil {
		t.Fatalf("update: %v", err)
	}
	entry, err := f.registry.GetStakingToken(depositToken)
	if err != nil {
		t.Fatalf("get staking token: %v", err)
	}
	if entry.RewardAmount.Cmp(big.NewInt(1010)) != 0 {
		t.Fatalf("expected 1010, got %s", entry.RewardAmount)
	}
	if entry.Duration != threeMonths+86_400 {
		t.Fatalf("expected duration bump, got %d", entry.Duration)
	}
}

func TestUpdateRejectsZeroDuration(t *testing.T) {
	f := newRegistryFixture(t)
	if _, err := f.registry.Deploy(depositToken, big.NewInt(1000), threeMonths); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if err := f.registry.Update(depositToken, big.NewInt(1000), 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	// The pending configuration is untouched.
	entry, err := f.registry.GetStakingToken(depositToken)
	if err != nil {
		t.Fatalf("get staking token: %v", err)
	}
	if entry.Duration != threeMonths {
		t.Fatalf("expected duration %d, got %d", threeMonths, entry.Duration)
	}
}

func TestNotifyRequiresDeploy(t *testing.T) {
	f := newRegistryFixture(t)
	err := f.registry.NotifyRewardAmount(depositToken)
	if !errors.Is(err, ErrNotDeployed) {
		t.Fatalf("expected ErrNotDeployed, got %v", err)
	}
}

func TestNotifyNotReadyBeforeWindowElapses(t *testing.T) {
	f := newRegistryFixture(t)
	if _, err := f.registry.Deploy(depositToken, big.NewInt(1000), 100); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	f.clock.Advance(99)
	err := f.registry.NotifyRewardAmount(depositToken)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestNotifyFundsLedgerAndResetsPending(t *testing.T) {
	f := newRegistryFixture(t)
	if _, err := f.registry.Deploy(depositToken, big.NewInt(100_000), 100); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if err := f.bank.Mint(rewardToken, f.registry.Address(), big.NewInt(100_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.clock.Advance(100)

	if err := f.registry.NotifyRewardAmount(depositToken); err != nil {
		t.Fatalf("notify: %v", err)
	}

	ledger, err := f.registry.Ledger(depositToken)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	rate, _ := ledger.RewardRate()
	if rate.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected rate 1000, got %s", rate)
	}
	custody, _ := f.bank.BalanceOf(rewardToken, ledger.PoolAddress())
	if custody.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("expected custody 100000, got %s", custody)
	}

	entry, _ := f.registry.GetStakingToken(depositToken)
	if entry.RewardAmount.Sign() != 0 || entry.Duration != 0 {
		t.Fatalf("expected pending params reset, got %s/%d", entry.RewardAmount, entry.Duration)
	}
	if entry.ProvisionedAt != uint64(f.clock.now) {
		t.Fatalf("expected provisionedAt %d, got %d", f.clock.now, entry.ProvisionedAt)
	}

	if _, ok := f.emitter.last().(events.RewardAdded); !ok {
		t.Fatalf("expected RewardAdded event, got %T", f.emitter.last())
	}
}

func TestNotifyWithoutFreshUpdateFails(t *testing.T) {
	f := newRegistryFixture(t)
	if _, err := f.registry.Deploy(depositToken, big.NewInt(100_000), 100); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if err := f.bank.Mint(rewardToken, f.registry.Address(), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.clock.Advance(100)
	if err := f.registry.NotifyRewardAmount(depositToken); err != nil {
		t.Fatalf("notify: %v", err)
	}

	// Pending parameters were cleared; a second notify must be preceded by
	// an explicit update.
	f.clock.Advance(10_000)
	if err := f.registry.NotifyRewardAmount(depositToken); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if err := f.registry.Update(depositToken, big.NewInt(50_000), 100); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.registry.NotifyRewardAmount(depositToken); err != nil {
		t.Fatalf("second notify: %v", err)
	}
}

func TestPoolsListsDeployments(t *testing.T) {
	f := newRegistryFixture(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000d2")
	if _, err := f.registry.Deploy(depositToken, big.NewInt(1), 10); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if _, err := f.registry.Deploy(other, big.NewInt(1), 10); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	pools, err := f.registry.Pools()
	if err != nil {
		t.Fatalf("pools: %v", err)
	}
	if len(pools) != 2 || pools[0] != depositToken || pools[1] != other {
		t.Fatalf("unexpected pool list %v", pools)
	}
}
