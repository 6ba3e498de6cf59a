package staking

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stakehub/core/state"
	nativecommon "stakehub/native/common"
	"stakehub/native/token"
	"stakehub/storage"
)

var baseAsset = common.HexToAddress("0x00000000000000000000000000000000000000f1")

// fakeAdapter mints a fixed deposit amount per unit of base asset straight to
// the recipient, mirroring the liquidity manager's contract.
type fakeAdapter struct {
	bank    *token.Bank
	deposit common.Address
	rate    int64
	fail    bool
}

func (a *fakeAdapter) DepositTokenFor(base common.Address) (common.Address, bool) {
	if base != baseAsset {
		return common.Address{}, false
	}
	return a.deposit, true
}

func (a *fakeAdapter) AddLiquidity(base, supplier, recipient common.Address, baseAmount *big.Int) (*LiquidityResult, error) {
	if a.fail {
		return nil, errors.New("pair unavailable")
	}
	minted := new(big.Int).Mul(baseAmount, big.NewInt(a.rate))
	if err := a.bank.Mint(a.deposit, recipient, minted); err != nil {
		return nil, err
	}
	return &LiquidityResult{DepositToken: a.deposit, Minted: minted, BaseUsed: baseAmount}, nil
}

type entryFixture struct {
	bank     *token.Bank
	registry *Registry
	adapter  *fakeAdapter
	entry    *EntryPoint
	clock    *manualClock
}

func newEntryFixture(t *testing.T) *entryFixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	bank := token.NewBank(manager)
	book := NewBook(manager)
	clock := &manualClock{now: 1_000_000}
	registry := NewRegistry(book, bank, rewardToken)
	registry.SetClock(clock.Now)
	if _, err := registry.Deploy(depositToken, big.NewInt(1000), 100); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	adapter := &fakeAdapter{bank: bank, deposit: depositToken, rate: 2}
	entry := NewEntryPoint(registry, adapter, bank)
	entry.SetClock(clock.Now)
	return &entryFixture{bank: bank, registry: registry, adapter: adapter, entry: entry, clock: clock}
}

func TestAddLiquidityAndStake(t *testing.T) {
	f := newEntryFixture(t)
	result, err := f.entry.AddLiquidityAndStake(userA, baseAsset, big.NewInt(50))
	if err != nil {
		t.Fatalf("addLiquidityAndStake: %v", err)
	}
	if result.Minted.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 minted, got %s", result.Minted)
	}

	ledger, _ := f.registry.Ledger(depositToken)
	staked, _ := ledger.BalanceOf(userA)
	if staked.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected staked 100, got %s", staked)
	}
	// The mint landed in pool custody, not in the user's wallet.
	wallet, _ := f.bank.BalanceOf(depositToken, userA)
	if wallet.Sign() != 0 {
		t.Fatalf("expected empty wallet, got %s", wallet)
	}
	custody, _ := f.bank.BalanceOf(depositToken, ledger.PoolAddress())
	if custody.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected custody 100, got %s", custody)
	}
}

func TestAddLiquidityAndStakeAdapterFailureIsAtomic(t *testing.T) {
	f := newEntryFixture(t)
	f.adapter.fail = true
	if _, err := f.entry.AddLiquidityAndStake(userA, baseAsset, big.NewInt(50)); err == nil {
		t.Fatal("expected adapter failure to propagate")
	}
	ledger, _ := f.registry.Ledger(depositToken)
	staked, _ := ledger.BalanceOf(userA)
	if staked.Sign() != 0 {
		t.Fatalf("expected no staked balance after failure, got %s", staked)
	}
	total, _ := ledger.TotalSupply()
	if total.Sign() != 0 {
		t.Fatalf("expected empty pool after failure, got %s", total)
	}
}

func TestAddLiquidityAndStakeUnknownBase(t *testing.T) {
	f := newEntryFixture(t)
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000f2")
	if _, err := f.entry.AddLiquidityAndStake(userA, unknown, big.NewInt(1)); !errors.Is(err, ErrPairUnknown) {
		t.Fatalf("expected ErrPairUnknown, got %v", err)
	}
}

func TestAddLiquidityAndStakeRequiresPool(t *testing.T) {
	f := newEntryFixture(t)
	f.adapter.deposit = common.HexToAddress("0x00000000000000000000000000000000000000d9")
	if _, err := f.entry.AddLiquidityAndStake(userA, baseAsset, big.NewInt(1)); !errors.Is(err, ErrNotDeployed) {
		t.Fatalf("expected ErrNotDeployed, got %v", err)
	}
}

func TestAddLiquidityAndStakePausedMovesNoFunds(t *testing.T) {
	f := newEntryFixture(t)
	if err := f.bank.Mint(baseAsset, userA, big.NewInt(50)); err != nil {
		t.Fatalf("mint base: %v", err)
	}
	f.entry.SetPauses(&stubPauses{paused: true})

	_, err := f.entry.AddLiquidityAndStake(userA, baseAsset, big.NewInt(50))
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}

	// The guard fired before the adapter ran: the base asset is still in
	// the user's wallet and pool custody holds nothing.
	wallet, _ := f.bank.BalanceOf(baseAsset, userA)
	if wallet.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected base wallet 50, got %s", wallet)
	}
	ledger, _ := f.registry.Ledger(depositToken)
	custody, _ := f.bank.BalanceOf(depositToken, ledger.PoolAddress())
	if custody.Sign() != 0 {
		t.Fatalf("expected empty pool custody, got %s", custody)
	}
	staked, _ := ledger.BalanceOf(userA)
	if staked.Sign() != 0 {
		t.Fatalf("expected no staked balance, got %s", staked)
	}
}

func TestStakeWithPermit(t *testing.T) {
	f := newEntryFixture(t)
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner := ethcrypto.PubkeyToAddress(key.PublicKey)
	amount := big.NewInt(100)
	if err := f.bank.Mint(depositToken, owner, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}

	ledger, _ := f.registry.Ledger(depositToken)
	deadline := uint64(f.clock.now) + 3600
	digest := f.bank.PermitDigest(depositToken, owner, ledger.PoolAddress(), amount, 0, deadline)
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := f.entry.StakeWithPermit(owner, depositToken, amount, deadline, sig); err != nil {
		t.Fatalf("stakeWithPermit: %v", err)
	}
	staked, _ := ledger.BalanceOf(owner)
	if staked.Cmp(amount) != 0 {
		t.Fatalf("expected staked %s, got %s", amount, staked)
	}
}

func TestStakeWithPermitPausedConsumesNothing(t *testing.T) {
	f := newEntryFixture(t)
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner := ethcrypto.PubkeyToAddress(key.PublicKey)
	amount := big.NewInt(100)
	if err := f.bank.Mint(depositToken, owner, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}

	ledger, _ := f.registry.Ledger(depositToken)
	deadline := uint64(f.clock.now) + 3600
	digest := f.bank.PermitDigest(depositToken, owner, ledger.PoolAddress(), amount, 0, deadline)
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	f.entry.SetPauses(&stubPauses{paused: true})
	if err := f.entry.StakeWithPermit(owner, depositToken, amount, deadline, sig); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}

	// Neither the nonce nor the allowance moved; the same signature works
	// once the module resumes.
	nonce, _ := f.bank.Nonce(depositToken, owner)
	if nonce != 0 {
		t.Fatalf("expected nonce 0 after paused permit, got %d", nonce)
	}
	allowance, _ := f.bank.Allowance(depositToken, owner, ledger.PoolAddress())
	if allowance.Sign() != 0 {
		t.Fatalf("expected no allowance, got %s", allowance)
	}
	f.entry.SetPauses(&stubPauses{paused: false})
	if err := f.entry.StakeWithPermit(owner, depositToken, amount, deadline, sig); err != nil {
		t.Fatalf("stakeWithPermit after unpause: %v", err)
	}
	staked, _ := ledger.BalanceOf(owner)
	if staked.Cmp(amount) != 0 {
		t.Fatalf("expected staked %s, got %s", amount, staked)
	}
}

func TestStakeWithPermitRejectsBadSignature(t *testing.T) {
	f := newEntryFixture(t)
	key, _ := ethcrypto.GenerateKey()
	owner := ethcrypto.PubkeyToAddress(key.PublicKey)
	amount := big.NewInt(100)
	if err := f.bank.Mint(depositToken, owner, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	sig := make([]byte, 65)
	err := f.entry.StakeWithPermit(owner, depositToken, amount, uint64(f.clock.now)+3600, sig)
	if err == nil {
		t.Fatal("expected signature rejection")
	}
	ledger, _ := f.registry.Ledger(depositToken)
	staked, _ := ledger.BalanceOf(owner)
	if staked.Sign() != 0 {
		t.Fatalf("expected no stake, got %s", staked)
	}
}
