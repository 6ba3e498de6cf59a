package liquidity

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stakehub/native/staking"
)

var (
	ErrInvalidAmount = errors.New("liquidity: amount must be positive")
	ErrUnknownPair   = errors.New("liquidity: no pair registered for base asset")
	ErrZeroMint      = errors.New("liquidity: provision would mint nothing")
)

// Pair describes one AMM pair the manager can provision into: the deposit
// token its pool mints, and the quote ratio applied to the supplied base
// amount. Pricing and slippage live with the pair source, not here.
type Pair struct {
	Base         common.Address
	DepositToken common.Address
	RateNum      *big.Int
	RateDen      *big.Int
}

// PairSource resolves the pair for a base asset.
type PairSource interface {
	Pair(base common.Address) (Pair, bool)
}

// StaticPairs is a PairSource backed by a fixed table, typically loaded from
// the daemon configuration.
type StaticPairs map[common.Address]Pair

// Pair implements PairSource.
func (s StaticPairs) Pair(base common.Address) (Pair, bool) {
	p, ok := s[base]
	return p, ok
}

// TokenBank is the custody surface the manager moves funds through.
type TokenBank interface {
	Transfer(token, from, to common.Address, amount *big.Int) error
	Mint(token, to common.Address, amount *big.Int) error
}

// ReserveAddress derives the custody account holding a pair's base-asset
// reserves.
func ReserveAddress(base common.Address) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("stakehub/reserve/"), base.Bytes())[12:])
}

// Manager is the liquidity adapter: it pulls the base asset into the pair's
// reserve and mints the quoted deposit-token amount to the recipient. It
// implements staking.LiquidityAdapter.
type Manager struct {
	bank  TokenBank
	pairs PairSource
}

// NewManager constructs a manager over the provided pair source.
func NewManager(bank TokenBank, pairs PairSource) *Manager {
	return &Manager{bank: bank, pairs: pairs}
}

// DepositTokenFor resolves the deposit token minted for a base asset.
func (m *Manager) DepositTokenFor(base common.Address) (common.Address, bool) {
	pair, ok := m.pairs.Pair(base)
	if !ok {
		return common.Address{}, false
	}
	return pair.DepositToken, true
}

// AddLiquidity pulls baseAmount of the base asset from the supplier into the
// pair reserve and mints the quoted deposit amount to the recipient. The
// supplied amount is consumed in full; a quote that truncates to zero fails
// the whole operation.
func (m *Manager) AddLiquidity(base, supplier, recipient common.Address, baseAmount *big.Int) (*staking.LiquidityResult, error) {
	if baseAmount == nil || baseAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pair, ok := m.pairs.Pair(base)
	if !ok {
		return nil, ErrUnknownPair
	}
	minted := new(big.Int).Mul(baseAmount, pair.RateNum)
	minted.Quo(minted, pair.RateDen)
	if minted.Sign() == 0 {
		return nil, ErrZeroMint
	}
	if err := m.bank.Transfer(base, supplier, ReserveAddress(base), baseAmount); err != nil {
		return nil, err
	}
	if err := m.bank.Mint(pair.DepositToken, recipient, minted); err != nil {
		return nil, err
	}
	return &staking.LiquidityResult{
		DepositToken: pair.DepositToken,
		Minted:       minted,
		BaseUsed:     new(big.Int).Set(baseAmount),
	}, nil
}
