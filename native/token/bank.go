package token

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount         = errors.New("token: amount must be positive")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Storage abstracts the subset of state manager functionality required by the
// bank.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	balancePrefix   = []byte("token/bal/")
	allowancePrefix = []byte("token/allow/")
	noncePrefix     = []byte("token/nonce/")
)

func balanceKey(token, holder common.Address) []byte {
	key := make([]byte, 0, len(balancePrefix)+2*common.AddressLength)
	key = append(key, balancePrefix...)
	key = append(key, token.Bytes()...)
	return append(key, holder.Bytes()...)
}

func allowanceKey(token, owner, spender common.Address) []byte {
	key := make([]byte, 0, len(allowancePrefix)+3*common.AddressLength)
	key = append(key, allowancePrefix...)
	key = append(key, token.Bytes()...)
	key = append(key, owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

func nonceKey(token, owner common.Address) []byte {
	key := make([]byte, 0, len(noncePrefix)+2*common.AddressLength)
	key = append(key, noncePrefix...)
	key = append(key, token.Bytes()...)
	return append(key, owner.Bytes()...)
}

// Bank keeps the balance, allowance and permit-nonce books for every token the
// staking system touches. It is the single custody authority: ledgers and the
// registry move funds exclusively through it, inside the same serialized
// operation that mutates their own records.
type Bank struct {
	store   Storage
	chainID uint64
}

// NewBank constructs a bank bound to the provided state backend.
func NewBank(store Storage) *Bank {
	return &Bank{store: store, chainID: 1}
}

// SetChainID configures the chain identifier folded into permit digests.
func (b *Bank) SetChainID(id uint64) { b.chainID = id }

// BalanceOf returns the holder's balance for the given token. Missing entries
// read as zero.
func (b *Bank) BalanceOf(token, holder common.Address) (*big.Int, error) {
	balance := new(big.Int)
	if _, err := b.store.KVGet(balanceKey(token, holder), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (b *Bank) setBalance(token, holder common.Address, amount *big.Int) error {
	return b.store.KVPut(balanceKey(token, holder), amount)
}

// Mint credits freshly created token units to the recipient. Only genesis
// seeding and the liquidity manager's deposit-token issuance call this.
func (b *Bank) Mint(token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := b.BalanceOf(token, to)
	if err != nil {
		return err
	}
	return b.setBalance(token, to, new(big.Int).Add(balance, amount))
}

// Transfer moves amount between holders, failing when the sender's balance
// cannot cover it.
func (b *Bank) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := b.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := b.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := b.setBalance(token, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return b.setBalance(token, to, new(big.Int).Add(toBalance, amount))
}

// Allowance returns what spender may still pull from owner.
func (b *Bank) Allowance(token, owner, spender common.Address) (*big.Int, error) {
	allowance := new(big.Int)
	if _, err := b.store.KVGet(allowanceKey(token, owner, spender), allowance); err != nil {
		return nil, err
	}
	return allowance, nil
}

// Approve sets spender's allowance on owner's balance.
func (b *Bank) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return b.store.KVPut(allowanceKey(token, owner, spender), amount)
}

// TransferFrom spends spender's allowance to move owner funds to the
// recipient. Allowance is decremented before balances move so a failed
// transfer cannot leave a stale approval behind.
func (b *Bank) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := b.Allowance(token, owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := b.store.KVPut(allowanceKey(token, owner, spender), new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return b.Transfer(token, owner, to, amount)
}

// Nonce returns the owner's next unused permit nonce for the token.
func (b *Bank) Nonce(token, owner common.Address) (uint64, error) {
	var nonce uint64
	if _, err := b.store.KVGet(nonceKey(token, owner), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (b *Bank) bumpNonce(token, owner common.Address, current uint64) error {
	return b.store.KVPut(nonceKey(token, owner), current+1)
}
