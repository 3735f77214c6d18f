package ledger

import (
	"errors"

	"stryd.mini/ledger/internal/types"
)

// ErrTxnClosed is returned when a Txn is used after Commit or Discard.
var ErrTxnClosed = errors.New("transaction already closed")

// Txn is the view one transaction has of the ledger. Writes are buffered
// until Commit; Discard, or simply dropping the Txn, leaves the ledger as
// it was.
//
// A Txn is not safe for concurrent use. The consensus engine delivers
// transactions one at a time, which is the only exclusivity the program
// logic relies on.
type Txn struct {
	state  *State
	signer types.Pubkey
	writes map[types.Address][]byte
	closed bool
}

// Signer returns the authenticated identity that signed the transaction.
func (t *Txn) Signer() types.Pubkey { return t.signer }

// Get returns a copy of the record at addr as this transaction sees it.
func (t *Txn) Get(addr types.Address) ([]byte, bool) {
	if data, ok := t.writes[addr]; ok {
		return append([]byte(nil), data...), true
	}
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()
	if data, ok := t.state.pending[addr]; ok {
		return append([]byte(nil), data...), true
	}
	if data, ok := t.state.accounts[addr]; ok {
		return append([]byte(nil), data...), true
	}
	return nil, false
}

// Put buffers a write of data at addr.
func (t *Txn) Put(addr types.Address, data []byte) {
	if t.closed {
		return
	}
	t.writes[addr] = append([]byte(nil), data...)
}

// Writes returns the addresses written so far.
func (t *Txn) Writes() []types.Address {
	return sortedAddresses(t.writes)
}

// Commit makes the buffered writes part of the open block.
func (t *Txn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	for addr, data := range t.writes {
		t.state.pending[addr] = data
	}
	t.writes = nil
	return nil
}

// Discard drops the buffered writes.
func (t *Txn) Discard() {
	t.closed = true
	t.writes = nil
}
