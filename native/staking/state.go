package staking

import (
	"github.com/ethereum/go-ethereum/common"
)

// Storage abstracts the subset of state manager functionality required by the
// staking book.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	ledgerPrefix   = []byte("staking/ledger/")
	positionPrefix = []byte("staking/pos/")
	poolPrefix     = []byte("staking/pool/")
	poolIndexKey   = []byte("staking/pools")
)

func ledgerKey(token common.Address) []byte {
	return append(append([]byte(nil), ledgerPrefix...), token.Bytes()...)
}

func positionKey(token, account common.Address) []byte {
	key := append(append([]byte(nil), positionPrefix...), token.Bytes()...)
	return append(key, account.Bytes()...)
}

func poolKey(token common.Address) []byte {
	return append(append([]byte(nil), poolPrefix...), token.Bytes()...)
}

// Book is the persistent RegistryState implementation backed by the state
// manager. Records are RLP encoded under stable prefixed keys.
type Book struct {
	store Storage
}

// NewBook constructs a staking book bound to the provided state backend.
func NewBook(store Storage) *Book {
	return &Book{store: store}
}

// Ledger loads the accumulator snapshot for a pool, zeroed when absent.
func (b *Book) Ledger(token common.Address) (*LedgerSnapshot, error) {
	snap := new(LedgerSnapshot)
	if _, err := b.store.KVGet(ledgerKey(token), snap); err != nil {
		return nil, err
	}
	return snap.Normalize(), nil
}

// PutLedger stores the accumulator snapshot for a pool.
func (b *Book) PutLedger(token common.Address, snap *LedgerSnapshot) error {
	return b.store.KVPut(ledgerKey(token), snap.Normalize())
}

// Position loads an account's stake record, zeroed when absent. Positions are
// created lazily at first stake and never removed; a zero balance is valid.
func (b *Book) Position(token, account common.Address) (*Position, error) {
	pos := new(Position)
	if _, err := b.store.KVGet(positionKey(token, account), pos); err != nil {
		return nil, err
	}
	return pos.Normalize(), nil
}

// PutPosition stores an account's stake record.
func (b *Book) PutPosition(token, account common.Address, pos *Position) error {
	return b.store.KVPut(positionKey(token, account), pos.Normalize())
}

// PoolEntry loads the registry record for a deposit token.
func (b *Book) PoolEntry(token common.Address) (*PoolEntry, bool, error) {
	entry := new(PoolEntry)
	found, err := b.store.KVGet(poolKey(token), entry)
	if err != nil || !found {
		return nil, false, err
	}
	return entry.Normalize(), true, nil
}

// PutPoolEntry stores the registry record for a deposit token.
func (b *Book) PutPoolEntry(token common.Address, entry *PoolEntry) error {
	return b.store.KVPut(poolKey(token), entry.Normalize())
}

// AppendPool adds the deposit token to the deployment index. Duplicates are
// ignored by the underlying list append.
func (b *Book) AppendPool(token common.Address) error {
	return b.store.KVAppend(poolIndexKey, token.Bytes())
}

// PoolList returns every deployed deposit token in deployment order.
func (b *Book) PoolList() ([]common.Address, error) {
	var raw [][]byte
	if err := b.store.KVGetList(poolIndexKey, &raw); err != nil {
		return nil, err
	}
	tokens := make([]common.Address, 0, len(raw))
	for _, entry := range raw {
		tokens = append(tokens, common.BytesToAddress(entry))
	}
	return tokens, nil
}
