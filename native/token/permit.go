package token

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrPermitExpired    = errors.New("token: permit deadline elapsed")
	ErrInvalidSignature = errors.New("token: invalid permit signature")
)

var (
	permitTypehash = ethcrypto.Keccak256([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
	domainTypehash = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	domainName     = ethcrypto.Keccak256([]byte("stakehub"))
	domainVersion  = ethcrypto.Keccak256([]byte("1"))
)

func pad32(b []byte) []byte { return common.LeftPadBytes(b, 32) }

func (b *Bank) domainSeparator(token common.Address) []byte {
	return ethcrypto.Keccak256(
		domainTypehash,
		domainName,
		domainVersion,
		pad32(new(big.Int).SetUint64(b.chainID).Bytes()),
		pad32(token.Bytes()),
	)
}

// PermitDigest computes the typed-data digest an owner signs to authorise a
// spender without an on-ledger approval transaction.
func (b *Bank) PermitDigest(token, owner, spender common.Address, value *big.Int, nonce uint64, deadline uint64) []byte {
	structHash := ethcrypto.Keccak256(
		permitTypehash,
		pad32(owner.Bytes()),
		pad32(spender.Bytes()),
		pad32(value.Bytes()),
		pad32(new(big.Int).SetUint64(nonce).Bytes()),
		pad32(new(big.Int).SetUint64(deadline).Bytes()),
	)
	return ethcrypto.Keccak256([]byte("\x19\x01"), b.domainSeparator(token), structHash)
}

// Permit verifies a signed approval and, when valid, installs the allowance
// and consumes the owner's nonce. The signature is the 65-byte r||s||v form
// with v in {0,1,27,28}.
func (b *Bank) Permit(token, owner, spender common.Address, value *big.Int, deadline uint64, now uint64, sig []byte) error {
	if value == nil || value.Sign() < 0 {
		return ErrInvalidAmount
	}
	if deadline != 0 && now > deadline {
		return ErrPermitExpired
	}
	if len(sig) != 65 {
		return ErrInvalidSignature
	}
	nonce, err := b.Nonce(token, owner)
	if err != nil {
		return err
	}
	digest := b.PermitDigest(token, owner, spender, value, nonce, deadline)

	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pubkey, err := ethcrypto.Ecrecover(digest, normalized)
	if err != nil {
		return ErrInvalidSignature
	}
	recovered := ethcrypto.Keccak256(pubkey[1:])[12:]
	if !bytes.Equal(recovered, owner.Bytes()) {
		return ErrInvalidSignature
	}
	if err := b.Approve(token, owner, spender, value); err != nil {
		return err
	}
	return b.bumpNonce(token, owner, nonce)
}
