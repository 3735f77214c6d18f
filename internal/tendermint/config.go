package tendermint

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// DefaultSocketAddress is where the ABCI server listens unless configured.
const DefaultSocketAddress = "unix://stryd.sock"

// InitTendermint runs `tendermint init --home <tmHome>` unless the home
// already holds a config.toml.
func InitTendermint(tmHome string) error {
	if tmHome == "" {
		tmHome = TendermintHome()
	}

	configFile := filepath.Join(tmHome, "config", "config.toml")
	if _, err := os.Stat(configFile); err == nil {
		return nil
	}

	cmd := exec.Command("tendermint", "init", "--home", tmHome)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to initialize Tendermint: %w", err)
	}
	return nil
}

// GetTendermintCommand returns the command that starts a Tendermint node
// connected to the ABCI server at socketAddr.
//
//	cmd := tendermint.GetTendermintCommand("/path/to/.tendermint", "unix://stryd.sock")
//	cmd.Start()
func GetTendermintCommand(tmHome, socketAddr string) *exec.Cmd {
	if tmHome == "" {
		tmHome = TendermintHome()
	}
	if socketAddr == "" {
		socketAddr = DefaultSocketAddress
	}

	cmd := exec.Command("tendermint", "node",
		"--home", tmHome,
		"--proxy_app", socketAddr,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// TendermintHome returns TMHOME, or ~/.tendermint.
func TendermintHome() string {
	if home := os.Getenv("TMHOME"); home != "" {
		return home
	}
	return filepath.Join(os.Getenv("HOME"), ".tendermint")
}
