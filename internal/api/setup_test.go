package api

import (
	"context"
	"path/filepath"
	"testing"

	"stryd.mini/ledger/internal/address"
	"stryd.mini/ledger/internal/challenge"
	"stryd.mini/ledger/internal/identity"
	"stryd.mini/ledger/internal/ledger"
	"stryd.mini/ledger/internal/logger"
	"stryd.mini/ledger/internal/store"
	"stryd.mini/ledger/internal/tendermint"
	"stryd.mini/ledger/internal/types"
)

// MockRelay implements Relay for testing
type MockRelay struct {
	Result *tendermint.BroadcastResult
	Err    error
	Got    []*types.SignedTransaction
	Commit bool
}

func (m *MockRelay) BroadcastSignedTransaction(ctx context.Context, stx *types.SignedTransaction, commit bool) (*tendermint.BroadcastResult, error) {
	m.Got = append(m.Got, stx)
	m.Commit = commit
	return m.Result, m.Err
}

type fixture struct {
	svc     *Service
	state   *ledger.State
	machine *challenge.Machine
	relay   *MockRelay
	journal *logger.Logger
	creator *identity.Identity
	joiner  *identity.Identity
}

// setupTest creates a ledger holding challenges 1 and 2 of one creator,
// with a joiner in challenge 1, backed by a temporary SQLite store.
func setupTest(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	state, err := ledger.Open(ctx, db)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	m := challenge.NewMachine(address.NewDeriver(types.Pubkey{}), challenge.Config{})

	creator, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	joiner, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}

	for _, id := range []uint64{1, 2} {
		txn := state.Begin(creator.Pubkey())
		if _, err := m.CreateChallenge(txn, challenge.CreateArgs{ChallengeID: id, ParamA: 1, ParamB: 10, Name: "Challenge"}); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	txn := state.Begin(joiner.Pubkey())
	if _, err := m.JoinChallenge(txn, challenge.JoinArgs{ChallengeID: 1, Creator: creator.Pubkey()}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := state.Commit(ctx); err != nil {
		t.Fatalf("state commit: %v", err)
	}

	journal := logger.New(100)
	relay := &MockRelay{Result: &tendermint.BroadcastResult{Hash: "ABCD"}}
	return &fixture{
		svc:     NewService(state, m, db, relay, journal, 3),
		state:   state,
		machine: m,
		relay:   relay,
		journal: journal,
		creator: creator,
		joiner:  joiner,
	}
}
