package discovery

import (
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"stryd.mini/ledger/internal/types"
)

// Peer is a discovered stryd node.
type Peer struct {
	Instance string   `json:"instance"`
	Hostname string   `json:"hostname"`
	Port     int      `json:"port"`
	Addrs    []net.IP `json:"addrs"`
	Version  string   `json:"version,omitempty"`
	RPCAddr  string   `json:"rpc,omitempty"`
}

// APIURL returns the base URL of the peer's HTTP API, or "" before an
// address has been resolved.
func (p *Peer) APIURL() string {
	if len(p.Addrs) == 0 {
		return ""
	}
	return "http://" + net.JoinHostPort(p.Addrs[0].String(), strconv.Itoa(p.Port))
}

// PeerStore is a thread-safe set of peers running one program.
type PeerStore struct {
	programID types.Pubkey

	mtx   sync.RWMutex
	self  string
	peers map[string]*Peer // keyed by instance
}

func NewPeerStore(programID types.Pubkey) *PeerStore {
	return &PeerStore{programID: programID, peers: make(map[string]*Peer)}
}

// SetSelf names the local instance so its own announcement is skipped.
func (ps *PeerStore) SetSelf(instance string) {
	ps.mtx.Lock()
	ps.self = instance
	ps.mtx.Unlock()
}

// AddFromServiceEntry adds or updates a peer. It reports false for the
// local instance and for entries announcing a different program.
func (ps *PeerStore) AddFromServiceEntry(e *zeroconf.ServiceEntry) bool {
	if e == nil {
		return false
	}
	txt := parseTxt(e.Text)
	program, err := types.ParsePubkey(txt["program"])
	if err != nil || program != ps.programID {
		return false
	}

	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if e.Instance == ps.self {
		return false
	}
	ps.peers[e.Instance] = &Peer{
		Instance: e.Instance,
		Hostname: e.HostName,
		Port:     e.Port,
		Addrs:    append([]net.IP(nil), e.AddrIPv4...),
		Version:  txt["ver"],
		RPCAddr:  txt["rpc"],
	}
	return true
}

func (ps *PeerStore) Remove(instance string) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	delete(ps.peers, instance)
}

// List returns the known peers ordered by instance name.
func (ps *PeerStore) List() []*Peer {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()
	out := make([]*Peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

func parseTxt(records []string) map[string]string {
	txt := make(map[string]string, len(records))
	for _, r := range records {
		if k, v, ok := strings.Cut(r, "="); ok {
			txt[k] = v
		}
	}
	return txt
}
