// Package main is the entry point of the stryd node. It opens the ledger
// database, serves the challenge program to Tendermint over an ABCI socket
// and runs the HTTP API.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"stryd.mini/ledger/internal/abci"
	"stryd.mini/ledger/internal/address"
	"stryd.mini/ledger/internal/api"
	"stryd.mini/ledger/internal/challenge"
	"stryd.mini/ledger/internal/config"
	"stryd.mini/ledger/internal/discovery"
	"stryd.mini/ledger/internal/docs"
	"stryd.mini/ledger/internal/identity"
	"stryd.mini/ledger/internal/ledger"
	"stryd.mini/ledger/internal/logger"
	"stryd.mini/ledger/internal/store"
	"stryd.mini/ledger/internal/tendermint"
	"stryd.mini/ledger/internal/types"
	"stryd.mini/ledger/internal/web"
)

func main() {
	flags := pflag.NewFlagSet("stryd", pflag.ExitOnError)
	configPath := flags.String("config", os.Getenv("CONFIG_FILE"), "path to the JSON configuration file")
	showVersion := flags.Bool("version", false, "print the version and exit")
	flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("stryd %s (%s)\n", types.Version, types.BuildTime)
		return
	}

	log.Println("stryd node starting...")
	cfg, _ := config.LoadConfig(*configPath)

	// The node key identifies this operator; transactions are signed by
	// clients with their own keys.
	id, err := identity.LoadOrCreateIdentity(cfg.KeyFile)
	if err != nil {
		log.Fatalf("Failed to load node identity: %v", err)
	}
	log.Printf("Node identity: %s", id.Pubkey())

	db, err := store.Open(cfg.DBFile)
	if err != nil {
		log.Fatalf("Failed to open ledger database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state, err := ledger.Open(ctx, db)
	if err != nil {
		log.Fatalf("Failed to load ledger state: %v", err)
	}
	log.Printf("Ledger loaded at height %d with %d accounts", state.Height(), state.Len())

	programID, err := resolveProgramID(cfg.ProgramID)
	if err != nil {
		log.Fatalf("Invalid program_id: %v", err)
	}
	machine := challenge.NewMachine(address.NewDeriver(programID), challenge.Config{MaxNameLength: cfg.MaxNameLength})
	log.Printf("Program id: %s", machine.Deriver().ProgramID())

	journal := logger.New(cfg.JournalSize)
	app := abci.NewABCIApplication(state, machine, journal)

	if err := ensurePortAvailable(cfg.Port); err != nil {
		log.Fatalf("Port %d unavailable: %v", cfg.Port, err)
	}
	apiService := api.NewService(state, machine, db, tendermint.NewBroadcastClient(cfg.RPCAddress), journal, cfg.MaxBackups)
	server := web.NewServer(apiService, docs.Default(cfg.DocsDir), journal, cfg.Port)

	backups := newBackupScheduler(db, cfg.BackupEvery, cfg.MaxBackups)
	app.OnCommit = func(height int64, events []types.ChallengeEvent) {
		server.Publish(height, events)
		backups.maybeBackup(height)
	}

	abciServer, err := tendermint.NewABCIServer(app, &tendermint.Config{
		TendermintHome: cfg.TendermintHome,
		SocketAddress:  cfg.SocketAddress,
	})
	if err != nil {
		log.Fatalf("Failed to create ABCI server: %v", err)
	}
	if err := abciServer.Start(); err != nil {
		log.Fatalf("%v", err)
	}
	defer abciServer.Stop()

	var node *exec.Cmd
	if cfg.LaunchNode {
		node, err = launchTendermint(cfg.TendermintHome, abciServer.SocketPath())
		if err != nil {
			log.Fatalf("Failed to start Tendermint: %v", err)
		}
	}

	if cfg.Discovery {
		disc, err := discovery.NewService(programID)
		if err != nil {
			log.Printf("Warning: discovery disabled: %v", err)
		} else if err := disc.Start(discovery.Announcement{
			ProgramID: programID,
			Version:   types.Version,
			APIPort:   cfg.Port,
			RPCAddr:   cfg.AnnounceRPC,
		}); err != nil {
			log.Printf("Warning: discovery disabled: %v", err)
		} else {
			apiService.SetPeers(disc)
			defer disc.Stop()
		}
	}

	serverErrors := server.Start()
	log.Printf("API available at http://localhost:%d", cfg.Port)

	select {
	case <-ctx.Done():
	case err, ok := <-serverErrors:
		if ok && err != nil {
			log.Printf("Web server exited: %v", err)
		}
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: web shutdown: %v", err)
	}
	if node != nil && node.Process != nil {
		_ = node.Process.Signal(syscall.SIGTERM)
		_ = node.Wait()
	}
}

func resolveProgramID(text string) (types.Pubkey, error) {
	if text == "" {
		return types.Pubkey{}, nil
	}
	return types.ParsePubkey(text)
}

func launchTendermint(home, socket string) (*exec.Cmd, error) {
	if err := tendermint.InitTendermint(home); err != nil {
		return nil, err
	}
	cmd := tendermint.GetTendermintCommand(home, socket)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	log.Printf("Tendermint node started (pid %d)", cmd.Process.Pid)
	return cmd, nil
}

// backupScheduler snapshots the database every n blocks, one at a time,
// off the consensus goroutine.
type backupScheduler struct {
	db         *store.Store
	every      int64
	maxBackups int
	running    chan struct{}
}

func newBackupScheduler(db *store.Store, every int64, maxBackups int) *backupScheduler {
	return &backupScheduler{db: db, every: every, maxBackups: maxBackups, running: make(chan struct{}, 1)}
}

func (b *backupScheduler) maybeBackup(height int64) {
	if b.every <= 0 || height%b.every != 0 {
		return
	}
	select {
	case b.running <- struct{}{}:
	default:
		log.Printf("Warning: skipping backup at height %d, previous one still running", height)
		return
	}
	go func() {
		defer func() { <-b.running }()
		path, err := b.db.Backup(context.Background(), b.maxBackups)
		if err != nil {
			log.Printf("Warning: backup at height %d failed: %v", height, err)
			return
		}
		log.Printf("INFO: backup at height %d written to %s", height, path)
	}()
}

func ensurePortAvailable(port int) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return listener.Close()
}
