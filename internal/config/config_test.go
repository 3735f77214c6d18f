package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	c, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.KeyFile != "stryd_key.pem" || c.Port != 8080 || c.MaxNameLength != 100 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if Get() != c {
		t.Fatal("Get should return the loaded config")
	}
}

func TestLoadConfigMergesFile(t *testing.T) {
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"db_file":"/var/lib/stryd/ledger.db","max_name_length":32,"launch_node":true}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.DBFile != "/var/lib/stryd/ledger.db" || c.MaxNameLength != 32 || !c.LaunchNode {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.KeyFile != "stryd_key.pem" || c.SocketAddress != "unix://stryd.sock" || c.MaxBackups != 5 {
		t.Fatalf("defaults not merged: %+v", c)
	}
}

func TestLoadConfigFallsBack(t *testing.T) {
	t.Setenv("PORT", "")
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	for _, path := range []string{bad, filepath.Join(dir, "missing.json")} {
		c, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig(%s): %v", path, err)
		}
		if c.DBFile != "ledger.db" {
			t.Fatalf("LoadConfig(%s) did not fall back: %+v", path, c)
		}
	}
}

func TestPortOverride(t *testing.T) {
	t.Setenv("PORT", "9191")
	c, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Port != 9191 {
		t.Fatalf("Port = %d", c.Port)
	}
}
