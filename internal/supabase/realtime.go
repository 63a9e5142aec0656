package supabase

import (
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"
)

const progressTable = "batch_progress"

// ProgressRow is one order's live run state. Dashboards subscribe to the
// table through Supabase Realtime.
type ProgressRow struct {
	OrderID   string    `json:"order_id"`
	State     string    `json:"state"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Percent   int       `json:"percent"`
	LastJobID string    `json:"last_job_id,omitempty"`
	LastLog   string    `json:"last_log,omitempty"`
	Cancelled bool      `json:"cancelled"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RealtimeClient struct {
	client *supabase.Client
}

func NewRealtimeClient(client *supabase.Client) *RealtimeClient {
	return &RealtimeClient{
		client: client,
	}
}

// PublishProgress upserts the order's progress row, which Realtime then
// broadcasts to subscribers.
func (r *RealtimeClient) PublishProgress(row ProgressRow) error {
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	_, _, err := r.client.From(progressTable).Upsert(row, "order_id", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("failed to publish progress for order %s: %w", row.OrderID, err)
	}
	return nil
}

func ProgressPercent(processed, total int) int {
	if total == 0 {
		return 0
	}
	return processed * 100 / total
}
