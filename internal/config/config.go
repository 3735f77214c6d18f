// Package config centralizes runtime configuration for the stryd node. It
// loads a JSON configuration file and exposes a process-wide configuration
// with defaults. Tests and development builds use defaults when the file
// is not present; operators point CONFIG_FILE (or --config) at their own.
package config

import (
	"encoding/json"
	"os"
	"strconv"
)

// Config holds configurable options for the stryd node.
type Config struct {
	KeyFile        string `json:"key_file"`
	DBFile         string `json:"db_file"`
	Port           int    `json:"port"`
	SocketAddress  string `json:"socket_address"`  // ABCI listen address
	RPCAddress     string `json:"rpc_address"`     // Tendermint JSON-RPC
	TendermintHome string `json:"tendermint_home"` // empty means TMHOME or ~/.tendermint
	LaunchNode     bool   `json:"launch_node"`     // start `tendermint node` as a child process
	ProgramID      string `json:"program_id"`      // base58; empty selects the built-in id
	MaxNameLength  int    `json:"max_name_length"`
	MaxBackups     int    `json:"max_backups"`
	BackupEvery    int64  `json:"backup_every"` // blocks between database backups, 0 disables
	JournalSize    int    `json:"journal_size"`
	DocsDir        string `json:"docs_dir"`     // overrides the embedded docs when set
	Discovery      bool   `json:"discovery"`    // announce and browse for nodes over mDNS
	AnnounceRPC    string `json:"announce_rpc"` // RPC address advertised to discovered peers
}

var cfg *Config

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		KeyFile:       "stryd_key.pem",
		DBFile:        "ledger.db",
		Port:          8080,
		SocketAddress: "unix://stryd.sock",
		RPCAddress:    "http://localhost:26657",
		ProgramID:     "",
		MaxNameLength: 100,
		MaxBackups:    5,
		BackupEvery:   1000,
		JournalSize:   500,
	}
}

// LoadConfig reads a JSON file at path. If the file does not exist or
// cannot be parsed, LoadConfig returns defaults (and no error) so that the
// node can run in development with minimal friction. A PORT environment
// variable overrides the HTTP port either way.
func LoadConfig(path string) (*Config, error) {
	def := Defaults()

	c := def
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			var fromFile Config
			if err := json.Unmarshal(b, &fromFile); err == nil {
				c = merge(&fromFile, def)
			}
		}
	}

	if p := os.Getenv("PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil && port > 0 {
			c.Port = port
		}
	}

	cfg = c
	return cfg, nil
}

// merge fills zero-value fields of c from def.
func merge(c, def *Config) *Config {
	if c.KeyFile == "" {
		c.KeyFile = def.KeyFile
	}
	if c.DBFile == "" {
		c.DBFile = def.DBFile
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.SocketAddress == "" {
		c.SocketAddress = def.SocketAddress
	}
	if c.RPCAddress == "" {
		c.RPCAddress = def.RPCAddress
	}
	if c.MaxNameLength <= 0 {
		c.MaxNameLength = def.MaxNameLength
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = def.MaxBackups
	}
	if c.BackupEvery < 0 {
		c.BackupEvery = 0
	}
	if c.JournalSize <= 0 {
		c.JournalSize = def.JournalSize
	}
	return c
}

// Get returns the loaded configuration. If LoadConfig hasn't been called
// yet, it returns defaults.
func Get() *Config {
	if cfg == nil {
		LoadConfig("")
	}
	return cfg
}
