package api

import "github.com/mattjoyce/cinema-bridge/internal/journal"

// ErrorResponse is returned on transport-level errors. Call failures are
// answered with a protocol.Reply instead.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Channel        string `json:"channel"`
	Method         string `json:"method"`
	JournalEnabled bool   `json:"journal_enabled"`
	Subscribers    int    `json:"subscribers"`
}

// DispatchesResponse is returned by GET /dispatches.
type DispatchesResponse struct {
	Dispatches []journal.Entry `json:"dispatches"`
	Count      int             `json:"count"`
}
