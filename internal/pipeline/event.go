package pipeline

import "dealer-studio-backend/internal/store"

type EventType string

const (
	EventLog           EventType = "log"
	EventJobCompleted  EventType = "job_completed"
	EventJobFailed     EventType = "job_failed"
	EventBatchComplete EventType = "batch_complete"
)

// Event is one progress notification of a run. Processed and Total are the
// run's counters at the time the event was sent.
type Event struct {
	Type      EventType      `json:"type"`
	OrderID   string         `json:"order_id"`
	JobID     string         `json:"job_id,omitempty"`
	Processed int            `json:"processed"`
	Total     int            `json:"total"`
	Log       *store.LogLine `json:"log,omitempty"`
	Cancelled bool           `json:"cancelled,omitempty"`
}

// Drain collects every event of a run until the stream closes.
func Drain(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}
