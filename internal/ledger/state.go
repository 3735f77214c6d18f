// Package ledger holds the replicated account state of the challenge
// program. State maps derived addresses to record bytes; the ABCI
// application opens one Txn per delivered transaction, commits or discards
// it as a unit, and flushes the block's writes to a Store on Commit.
package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"stryd.mini/ledger/internal/types"
)

// Store persists committed accounts between restarts.
type Store interface {
	// LoadAll returns every committed account.
	LoadAll(ctx context.Context) (map[types.Address][]byte, error)
	// LastCommit returns the height and app hash of the last Apply.
	LastCommit(ctx context.Context) (height int64, appHash []byte, err error)
	// Apply writes a block's accounts together with its height and app
	// hash, all or nothing.
	Apply(ctx context.Context, writes map[types.Address][]byte, height int64, appHash []byte) error
}

// State represents the full collection of program accounts known on the
// network, plus the writes of the block currently being executed.
type State struct {
	mu       sync.RWMutex
	accounts map[types.Address][]byte // committed
	pending  map[types.Address][]byte // committed transactions of the open block
	height   int64
	appHash  []byte
	store    Store
}

// NewState returns an empty State that keeps everything in memory.
func NewState() *State {
	return &State{
		accounts: make(map[types.Address][]byte),
		pending:  make(map[types.Address][]byte),
	}
}

// Open loads the committed accounts from store and returns a State that
// writes each block back to it.
func Open(ctx context.Context, store Store) (*State, error) {
	accounts, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	height, appHash, err := store.LastCommit(ctx)
	if err != nil {
		return nil, fmt.Errorf("load last commit: %w", err)
	}
	if accounts == nil {
		accounts = make(map[types.Address][]byte)
	}
	s := &State{
		accounts: accounts,
		pending:  make(map[types.Address][]byte),
		height:   height,
		appHash:  appHash,
		store:    store,
	}
	if height > 0 {
		if got := computeAppHash(accounts); !bytes.Equal(got, appHash) {
			return nil, fmt.Errorf("stored app hash %x does not match accounts (%x) at height %d", appHash, got, height)
		}
	}
	return s, nil
}

// Height returns the height of the last committed block.
func (s *State) Height() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// AppHash returns the app hash of the last committed block.
func (s *State) AppHash() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.appHash...)
}

// Get returns a copy of the committed record at addr.
func (s *State) Get(addr types.Address) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.accounts[addr]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len returns the number of committed accounts.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Range calls fn for every committed account in address order until fn
// returns false. fn must not call back into s.
func (s *State) Range(fn func(addr types.Address, data []byte) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, addr := range sortedAddresses(s.accounts) {
		if !fn(addr, append([]byte(nil), s.accounts[addr]...)) {
			return
		}
	}
}

// Begin opens a transaction on behalf of signer. Reads see committed
// state, then earlier committed transactions of the open block, then the
// transaction's own writes.
func (s *State) Begin(signer types.Pubkey) *Txn {
	return &Txn{
		state:  s,
		signer: signer,
		writes: make(map[types.Address][]byte),
	}
}

// PendingWrites returns the number of accounts written in the open block.
func (s *State) PendingWrites() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Commit closes the open block: pending writes become committed state, the
// height advances and the new app hash is returned. With a Store attached
// the block is persisted before memory is updated, so a failed write leaves
// the previous block in place.
func (s *State) Commit(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[types.Address][]byte, len(s.accounts)+len(s.pending))
	for addr, data := range s.accounts {
		next[addr] = data
	}
	for addr, data := range s.pending {
		next[addr] = data
	}
	height := s.height + 1
	appHash := computeAppHash(next)

	if s.store != nil {
		if err := s.store.Apply(ctx, s.pending, height, appHash); err != nil {
			return nil, fmt.Errorf("persist block %d: %w", height, err)
		}
	}

	s.accounts = next
	s.pending = make(map[types.Address][]byte)
	s.height = height
	s.appHash = appHash
	return append([]byte(nil), appHash...), nil
}

// Rollback drops the writes of the open block.
func (s *State) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[types.Address][]byte)
}

// computeAppHash is BLAKE3 over every account in address order, each as
// address ++ uint32 big-endian length ++ data.
func computeAppHash(accounts map[types.Address][]byte) []byte {
	h := blake3.New()
	var lenBuf [4]byte
	for _, addr := range sortedAddresses(accounts) {
		data := accounts[addr]
		h.Write(addr[:])
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
		h.Write(lenBuf[:])
		h.Write(data)
	}
	return h.Sum(nil)
}

func sortedAddresses(m map[types.Address][]byte) []types.Address {
	addrs := make([]types.Address, 0, len(m))
	for addr := range m {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}
