package store

import (
	"time"

	"dealer-studio-backend/internal/models"
)

type RunState string

const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunDrained RunState = "drained"
)

// LogLine is one entry of a run's append-only log.
type LogLine struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	Error   bool      `json:"error,omitempty"`
}

// Progress is a point-in-time view of an order's latest run.
type Progress struct {
	OrderID      string
	State        RunState
	Processed    int
	Total        int
	CurrentJobID string
	Cancelled    bool
	StartedAt    time.Time
	FinishedAt   time.Time
	Logs         []LogLine
}

func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Processed * 100 / p.Total
}

// Batch is what a run works on: the pending jobs in order plus the settings
// captured when the run began.
type Batch struct {
	OrderID  string
	TaskType models.TaskType
	StudioID string
	Branding models.Branding
	Jobs     []models.ProcessingJob
}

type run struct {
	state        RunState
	processed    int
	total        int
	currentJobID string
	cancelled    bool
	startedAt    time.Time
	finishedAt   time.Time
	logs         []LogLine
}

func (r *run) progress(orderID string) Progress {
	p := Progress{
		OrderID:      orderID,
		State:        r.state,
		Processed:    r.processed,
		Total:        r.total,
		CurrentJobID: r.currentJobID,
		Cancelled:    r.cancelled,
		StartedAt:    r.startedAt,
		FinishedAt:   r.finishedAt,
		Logs:         make([]LogLine, len(r.logs)),
	}
	copy(p.Logs, r.logs)
	return p
}
