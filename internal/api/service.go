// Package api serves the JSON endpoints of the stryd node: read-only views
// of committed challenges, address derivation, recent transaction
// outcomes, signed transaction relay and database backups.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"stryd.mini/ledger/internal/challenge"
	"stryd.mini/ledger/internal/ledger"
	"stryd.mini/ledger/internal/logger"
	"stryd.mini/ledger/internal/tendermint"
	"stryd.mini/ledger/internal/types"
)

// Relay forwards signed transactions to consensus.
// tendermint.BroadcastClient implements it.
type Relay interface {
	BroadcastSignedTransaction(ctx context.Context, signedTx *types.SignedTransaction, commit bool) (*tendermint.BroadcastResult, error)
}

// BackupStore is the part of the record store the backup endpoints use.
type BackupStore interface {
	Backup(ctx context.Context, maxBackups int) (string, error)
	Backups() ([]string, error)
}

// Service handles API requests
type Service struct {
	state      *ledger.State
	machine    *challenge.Machine
	store      BackupStore
	relay      Relay
	logger     *logger.Logger
	maxBackups int
	peers      PeerLister
}

// NewService creates a new API service. store and relay may be nil; the
// endpoints that need them then answer 503.
func NewService(state *ledger.State, machine *challenge.Machine, store BackupStore, relay Relay, logger *logger.Logger, maxBackups int) *Service {
	return &Service{
		state:      state,
		machine:    machine,
		store:      store,
		relay:      relay,
		logger:     logger,
		maxBackups: maxBackups,
	}
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeLedgerError answers with the status and taxonomy tag of err.
func (s *Service) writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, challenge.ErrChallengeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, challenge.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, challenge.ErrDuplicateChallenge),
		errors.Is(err, challenge.ErrAlreadyJoined),
		errors.Is(err, challenge.ErrChallengeClosed):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  challenge.Code(err),
		"kind":  challenge.Tag(err),
	})
}
