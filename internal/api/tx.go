package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"stryd.mini/ledger/internal/challenge"
	"stryd.mini/ledger/internal/tendermint"
	"stryd.mini/ledger/internal/types"
)

// maxTxBytes bounds a submitted transaction.
const maxTxBytes = 64 << 10

// @Title: Submit Transaction
// @Route: POST /api/tx?commit=true
// @Description: Relays a signed transaction to Tendermint; commit=true waits for the block
// @Response: {"hash": "...", "height": 12}
func (s *Service) HandleSubmitTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.relay == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no consensus endpoint configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxBytes+1))
	if err != nil || len(body) > maxTxBytes {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var stx types.SignedTransaction
	if err := json.Unmarshal(body, &stx); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// Reject what CheckTx would reject without a round trip.
	if !stx.Verify() {
		s.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	tx, err := stx.GetTransaction()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid transaction body")
		return
	}

	res, err := s.relay.BroadcastSignedTransaction(r.Context(), &stx, r.URL.Query().Get("commit") == "true")
	if err != nil {
		var txErr *tendermint.TxError
		if errors.As(err, &txErr) {
			s.logger.Rejected(txErr.Code, fmt.Sprintf("API: %s rejected: %s", tx.Type, txErr.Log))
			if challenge.ErrorForCode(txErr.Code) != nil {
				s.writeLedgerError(w, err)
				return
			}
			s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": txErr.Log, "code": txErr.Code})
			return
		}
		s.logger.Error(fmt.Sprintf("API: relay %s failed: %v", tx.Type, err))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.logger.Info(fmt.Sprintf("API: relayed %s %s", tx.Type, res.Hash))
	s.writeJSON(w, http.StatusAccepted, res)
}
