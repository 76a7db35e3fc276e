package models

import "time"

// EngineState is the lifecycle state of the renewal engine.
type EngineState string

const (
	EngineStopped EngineState = "stopped"
	EngineRunning EngineState = "running"
)

// RenewalReport summarises one renewal pass.
type RenewalReport struct {
	PassID     string    `json:"pass_id"`
	Selected   int       `json:"selected"`
	Renewed    int       `json:"renewed"`
	Failed     int       `json:"failed"`
	Removed    int       `json:"removed"`
	Expired    int       `json:"expired"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration of the pass.
func (r *RenewalReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// EngineStatus is what the internal status endpoint reports.
type EngineStatus struct {
	State      EngineState    `json:"state"`
	Interval   string         `json:"interval"`
	Lookahead  string         `json:"lookahead"`
	Lease      string         `json:"lease"`
	LastReport *RenewalReport `json:"last_report,omitempty"`
}
