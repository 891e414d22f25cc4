package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StateDir is where the agent keeps its service logs and, when no runtime
// dir exists, its socket.
func StateDir() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); base != "" {
		return filepath.Join(base, "usagebar"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("agent: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "usagebar"), nil
}

func DefaultSocketPath() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); base != "" {
		return filepath.Join(base, "usagebar", "agent.sock"), nil
	}
	stateDir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(stateDir, "agent.sock"), nil
}
