package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

type mockStorage struct {
	kv map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{kv: make(map[string][]byte)}
}

func (m *mockStorage) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockStorage) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

var (
	testToken = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b02")
)

func TestBankMintAndTransfer(t *testing.T) {
	bank := NewBank(newMockStorage())
	if err := bank.Mint(testToken, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bank.Transfer(testToken, alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, err := bank.BalanceOf(testToken, alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if aliceBal.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected 600, got %s", aliceBal)
	}
	bobBal, _ := bank.BalanceOf(testToken, bob)
	if bobBal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected 400, got %s", bobBal)
	}
}

func TestBankTransferInsufficient(t *testing.T) {
	bank := NewBank(newMockStorage())
	if err := bank.Mint(testToken, alice, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := bank.Transfer(testToken, alice, bob, big.NewInt(11))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestBankTransferFromConsumesAllowance(t *testing.T) {
	bank := NewBank(newMockStorage())
	if err := bank.Mint(testToken, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bank.Approve(testToken, alice, bob, big.NewInt(60)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := bank.TransferFrom(testToken, bob, alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	remaining, err := bank.Allowance(testToken, alice, bob)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if remaining.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected allowance 20, got %s", remaining)
	}
	if err := bank.TransferFrom(testToken, bob, alice, bob, big.NewInt(21)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}
}

func TestBankPermit(t *testing.T) {
	bank := NewBank(newMockStorage())
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner := ethcrypto.PubkeyToAddress(key.PublicKey)
	spender := bob
	value := big.NewInt(250)
	deadline := uint64(2_000_000)

	digest := bank.PermitDigest(testToken, owner, spender, value, 0, deadline)
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := bank.Permit(testToken, owner, spender, value, deadline, 1_000_000, sig); err != nil {
		t.Fatalf("permit: %v", err)
	}
	allowance, _ := bank.Allowance(testToken, owner, spender)
	if allowance.Cmp(value) != 0 {
		t.Fatalf("expected allowance %s, got %s", value, allowance)
	}
	nonce, _ := bank.Nonce(testToken, owner)
	if nonce != 1 {
		t.Fatalf("expected nonce 1, got %d", nonce)
	}

	// Replaying the same signature must fail: the nonce moved on.
	if err := bank.Permit(testToken, owner, spender, value, deadline, 1_000_000, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature on replay, got %v", err)
	}
}

func TestBankPermitExpired(t *testing.T) {
	bank := NewBank(newMockStorage())
	sig := make([]byte, 65)
	err := bank.Permit(testToken, alice, bob, big.NewInt(1), 100, 101, sig)
	if !errors.Is(err, ErrPermitExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}
