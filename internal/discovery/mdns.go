// Package discovery finds other stryd nodes on the local network using
// mDNS (zeroconf). Each node announces the _stryd._tcp service with its
// program id in the TXT record and browses for nodes of the same program;
// nodes running a different program are a different ledger and are
// ignored. Discovered nodes are kept in a PeerStore for the API.
package discovery

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"

	"stryd.mini/ledger/internal/types"
)

// ServiceType is the mDNS service stryd nodes announce.
const ServiceType = "_stryd._tcp"

// Announcement is what a node publishes about itself.
type Announcement struct {
	ProgramID types.Pubkey
	Version   string
	APIPort   int
	RPCAddr   string // Tendermint RPC as reachable from the LAN, may be empty
}

func (a Announcement) txt() []string {
	txt := []string{
		"program=" + a.ProgramID.String(),
		"ver=" + a.Version,
	}
	if a.RPCAddr != "" {
		txt = append(txt, "rpc="+a.RPCAddr)
	}
	return txt
}

// Service handles the mDNS registration and browsing.
type Service struct {
	resolver  *zeroconf.Resolver
	server    *zeroconf.Server
	peerStore *PeerStore
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewService creates a discovery service for nodes of programID.
func NewService(programID types.Pubkey) (*Service, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}
	return &Service{
		resolver:  resolver,
		peerStore: NewPeerStore(programID),
	}, nil
}

// Start announces the local node and begins browsing for others.
func (s *Service) Start(a Announcement) error {
	hostname, _ := os.Hostname()
	instance := hostname + "-" + strconv.Itoa(a.APIPort)

	server, err := zeroconf.Register(instance, ServiceType, "local.", a.APIPort, a.txt(), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	s.server = server
	s.peerStore.SetSelf(instance)
	log.Printf("mDNS: announced %s as %s", ServiceType, instance)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.browse(ctx)
	return nil
}

func (s *Service) browse(ctx context.Context) {
	defer close(s.done)

	entries := make(chan *zeroconf.ServiceEntry)
	go func(results <-chan *zeroconf.ServiceEntry) {
		for entry := range results {
			if entry.TTL == 0 {
				log.Printf("mDNS: peer removed: %s", entry.Instance)
				s.peerStore.Remove(entry.Instance)
				continue
			}
			if s.peerStore.AddFromServiceEntry(entry) {
				log.Printf("mDNS: peer discovered: %s (port %d)", entry.Instance, entry.Port)
			}
		}
	}(entries)

	if err := s.resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		log.Printf("ERROR: mDNS browse: %v", err)
		return
	}
	<-ctx.Done()
}

// Peers returns the discovered nodes.
func (s *Service) Peers() []*Peer {
	return s.peerStore.List()
}

// Stop withdraws the announcement and stops browsing.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if s.server != nil {
		s.server.Shutdown()
	}
	log.Println("mDNS: discovery stopped")
}
