package ipagateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthReport is served at /health. It never carries the password.
type HealthReport struct {
	Status           string            `json:"status"`
	FreeIPAConnected bool              `json:"freeipa_connected"`
	Timestamp        string            `json:"timestamp"`
	Version          string            `json:"version"`
	Environment      HealthEnvironment `json:"environment"`
	Tools            int               `json:"tools"`
	InFlight         int64             `json:"inflight_calls"`
	Reachable        *bool             `json:"reachable,omitempty"`

	// RateLimitedClients counts clients with a live bucket when limiting is on.
	RateLimitedClients *int `json:"rate_limited_clients,omitempty"`
}

// HealthEnvironment reports the configured defaults.
type HealthEnvironment struct {
	Server    string `json:"server"`
	Username  string `json:"username"`
	VerifySSL bool   `json:"verify_ssl"`
}

// ConnectionStatus is served at /connection-status.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Server    string `json:"server,omitempty"`
	Username  string `json:"username,omitempty"`
	ChangedAt string `json:"changed_at,omitempty"`
	Timestamp string `json:"timestamp"`
}

// handleHealth reports process health from local state. With ?probe=1 it
// also pings the server through the active session.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := g.manager.Status()
	report := HealthReport{
		Status:           "ok",
		FreeIPAConnected: status.Connected,
		Timestamp:        time.Now().Format(time.RFC3339),
		Version:          g.opts.Implementation.Version,
		Environment: HealthEnvironment{
			Server:    g.opts.Defaults.Server,
			Username:  g.opts.Defaults.Username,
			VerifySSL: g.opts.Defaults.VerifySSL,
		},
		Tools:    len(g.tools.Names()),
		InFlight: g.progress.InFlight(),
	}
	if g.limiter != nil {
		clients := g.limiter.size()
		report.RateLimitedClients = &clients
	}
	if probe := r.URL.Query().Get("probe"); status.Connected && (probe == "1" || probe == "true") {
		reachable := g.manager.Probe(r.Context()) == nil
		report.Reachable = &reachable
		if !reachable {
			report.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (g *Gateway) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	status := g.manager.Status()
	report := ConnectionStatus{
		Connected: status.Connected,
		Server:    status.Server,
		Username:  status.Username,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if changed := g.SessionChangedAt(); !changed.IsZero() {
		report.ChangedAt = changed.Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
