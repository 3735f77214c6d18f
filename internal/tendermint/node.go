// Package tendermint connects the ledger to a Tendermint node that runs as
// a separate process: the application serves ABCI on a socket, Tendermint
// dials it through --proxy_app, and clients reach the chain through the
// node's JSON-RPC endpoint.
package tendermint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	abciserver "github.com/tendermint/tendermint/abci/server"
	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/service"
)

// Config holds configuration for the ABCI server and Tendermint connection.
type Config struct {
	// TendermintHome is the directory for Tendermint data and config
	TendermintHome string

	// SocketAddress is the ABCI listen address, "unix://stryd.sock" or
	// "tcp://127.0.0.1:26658".
	SocketAddress string
}

// ABCIServer wraps an ABCI socket server.
type ABCIServer struct {
	server service.Service
	socket string
}

// NewABCIServer creates a socket server for app. It does not listen until
// Start.
func NewABCIServer(app abci.Application, config *Config) (*ABCIServer, error) {
	if app == nil {
		return nil, errors.New("ABCI application cannot be nil")
	}
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	socket := config.SocketAddress
	if socket == "" {
		socket = DefaultSocketAddress
	}

	return &ABCIServer{
		server: abciserver.NewSocketServer(socket, app),
		socket: socket,
	}, nil
}

// Start begins accepting Tendermint connections. A stale unix socket file
// left by a crashed run is removed first.
func (s *ABCIServer) Start() error {
	if path, ok := unixSocketPath(s.socket); ok {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale socket %s: %w", path, err)
		}
	}
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("failed to start ABCI server: %w", err)
	}
	log.Printf("INFO: ABCI server listening on %s", s.socket)
	return nil
}

// Run starts the server and stops it when ctx is cancelled.
func (s *ABCIServer) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Stop shuts the server down and removes its unix socket file.
func (s *ABCIServer) Stop() error {
	if s.server.IsRunning() {
		if err := s.server.Stop(); err != nil {
			return fmt.Errorf("failed to stop ABCI server: %w", err)
		}
	}
	if path, ok := unixSocketPath(s.socket); ok {
		_ = os.Remove(path)
	}
	return nil
}

// IsRunning returns true if the ABCI server is currently running.
func (s *ABCIServer) IsRunning() bool {
	return s.server.IsRunning()
}

// SocketPath returns the socket address the server is listening on.
func (s *ABCIServer) SocketPath() string {
	return s.socket
}

func unixSocketPath(addr string) (string, bool) {
	if !strings.HasPrefix(addr, "unix://") {
		return "", false
	}
	return strings.TrimPrefix(addr, "unix://"), true
}
