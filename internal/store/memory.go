package store

import (
	"context"
	"sync"

	"stryd.mini/ledger/internal/types"
)

// Memory is an in-process account store for tests and ephemeral nodes.
type Memory struct {
	mu       sync.RWMutex
	accounts map[types.Address][]byte
	height   int64
	appHash  []byte
	// FailApply, when set, is returned by Apply without writing anything.
	FailApply error
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[types.Address][]byte)}
}

func (m *Memory) LoadAll(ctx context.Context) (map[types.Address][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.Address][]byte, len(m.accounts))
	for addr, data := range m.accounts {
		out[addr] = append([]byte(nil), data...)
	}
	return out, nil
}

func (m *Memory) LastCommit(ctx context.Context) (int64, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.height, append([]byte(nil), m.appHash...), nil
}

func (m *Memory) Apply(ctx context.Context, writes map[types.Address][]byte, height int64, appHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailApply != nil {
		return m.FailApply
	}
	for addr, data := range writes {
		m.accounts[addr] = append([]byte(nil), data...)
	}
	m.height = height
	m.appHash = append([]byte(nil), appHash...)
	return nil
}
