package agent

import "time"

// APIVersion is bumped whenever the socket API changes shape.
const APIVersion = "v1"

// Config controls a single agent process.
type Config struct {
	SocketPath string
	ConfigPath string
	Interval   time.Duration
	Verbose    bool
}

type SourceRequest struct {
	Source string `json:"source"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	AgentVersion string `json:"agent_version,omitempty"`
	APIVersion   string `json:"api_version,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
