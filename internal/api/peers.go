package api

import (
	"net/http"

	"stryd.mini/ledger/internal/discovery"
)

// PeerLister reports nodes found on the local network.
// discovery.Service implements it.
type PeerLister interface {
	Peers() []*discovery.Peer
}

// SetPeers enables the peers endpoint.
func (s *Service) SetPeers(p PeerLister) { s.peers = p }

// @Title: List Peers
// @Route: GET /api/peers
// @Description: Lists stryd nodes of the same program discovered on the local network
// @Response: Array of {"instance": "...", "hostname": "...", "port": 8080, "addrs": [...], "version": "...", "rpc": "..."}
func (s *Service) HandlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.peers == nil {
		s.writeJSON(w, http.StatusOK, []*discovery.Peer{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.peers.Peers())
}
