package api

import (
	"net/http"
	"strconv"

	"stryd.mini/ledger/internal/challenge"
	"stryd.mini/ledger/internal/types"
)

// challengeKey reads the creator and id query parameters.
func challengeKey(r *http.Request) (types.Pubkey, uint64, string) {
	q := r.URL.Query()
	creator, err := types.ParsePubkey(q.Get("creator"))
	if err != nil {
		return types.Pubkey{}, 0, "creator must be a base58 or hex public key"
	}
	id, err := strconv.ParseUint(q.Get("id"), 10, 64)
	if err != nil {
		return types.Pubkey{}, 0, "id must be an unsigned integer"
	}
	return creator, id, ""
}

// @Title: Get Challenge
// @Route: GET /api/challenge?creator=...&id=...
// @Description: Returns the committed challenge of a creator, or the one stored at an address
// @Response: {"address": "...", "challenge": {...}}
func (s *Service) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if a := r.URL.Query().Get("address"); a != "" {
		addr, err := types.ParseAddress(a)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "address must be base58 or hex")
			return
		}
		data, ok := s.state.Get(addr)
		if !ok {
			s.writeError(w, http.StatusNotFound, "no record at "+addr.String())
			return
		}
		record, err := types.DecodeChallenge(data)
		if err != nil {
			s.writeLedgerError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, challenge.Result{Address: addr, Challenge: record})
		return
	}

	creator, id, msg := challengeKey(r)
	if msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}
	record, addr, err := s.machine.Lookup(s.state, creator, id)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, challenge.Result{Address: addr, Challenge: record})
}

// @Title: List Challenges
// @Route: GET /api/challenges?creator=...
// @Description: Lists committed challenges in address order, optionally only those of one creator
// @Response: Array of {"address": "...", "challenge": {...}}
func (s *Service) HandleChallenges(w http.ResponseWriter, r *http.Request) {
	var creator *types.Pubkey
	if c := r.URL.Query().Get("creator"); c != "" {
		pk, err := types.ParsePubkey(c)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "creator must be a base58 or hex public key")
			return
		}
		creator = &pk
	}

	results := challenge.List(s.state, creator)
	if results == nil {
		results = []challenge.Result{}
	}
	s.writeJSON(w, http.StatusOK, results)
}

// @Title: Derive Address
// @Route: GET /api/address?creator=...&id=...
// @Description: Computes the address and bump seed of a challenge whether or not it exists
// @Response: {"address": "...", "bump": 254, "program_id": "...", "exists": false}
func (s *Service) HandleAddress(w http.ResponseWriter, r *http.Request) {
	creator, id, msg := challengeKey(r)
	if msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}
	deriver := s.machine.Deriver()
	addr, bump := deriver.Derive(types.KindChallenge, creator, id)
	_, exists := s.state.Get(addr)
	s.writeJSON(w, http.StatusOK, struct {
		types.AddressInfo
		Exists bool `json:"exists"`
	}{
		AddressInfo: types.AddressInfo{Address: addr, Bump: bump, ProgramID: deriver.ProgramID()},
		Exists:      exists,
	})
}
