package models

import (
	"fmt"
	"strings"
	"time"
)

type TaskType string

const (
	TaskBackgroundReplacement TaskType = "bg-replacement"
	TaskPlateRedaction        TaskType = "plate-blur"
	TaskInteriorEnhancement   TaskType = "interior"
)

// ParseTaskType accepts both the short task ids used by the dashboard and the
// long descriptive names.
func ParseTaskType(s string) (TaskType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bg-replacement", "background-replacement":
		return TaskBackgroundReplacement, nil
	case "plate-blur", "plate-redaction":
		return TaskPlateRedaction, nil
	case "interior", "interior-enhancement":
		return TaskInteriorEnhancement, nil
	default:
		return "", fmt.Errorf("unknown task type %q", s)
	}
}

func (t TaskType) Label() string {
	switch t {
	case TaskBackgroundReplacement:
		return "Background Replacement"
	case TaskPlateRedaction:
		return "Plate Blur/Replace"
	case TaskInteriorEnhancement:
		return "Interior Enhancement"
	default:
		return string(t)
	}
}

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
)

// Branding is the dealership overlay applied to generated images.
type Branding struct {
	Logo    *Image
	Enabled bool
}

// Active reports whether branding should be sent to the generator.
func (b Branding) Active() bool {
	return b.Enabled && b.Logo != nil && len(b.Logo.Data) > 0
}

func (b Branding) Clone() Branding {
	out := Branding{Enabled: b.Enabled}
	if b.Logo != nil {
		logo := b.Logo.Clone()
		out.Logo = &logo
	}
	return out
}

type Order struct {
	ID        string
	Title     string
	TaskType  TaskType
	StudioID  string
	Branding  Branding
	Status    OrderStatus
	Jobs      []ProcessingJob
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComputeStatus derives the order status from its jobs: draft with no jobs,
// completed once every job is terminal and at least one succeeded, active
// otherwise.
func (o *Order) ComputeStatus() OrderStatus {
	if len(o.Jobs) == 0 {
		return OrderStatusDraft
	}
	succeeded := false
	for _, job := range o.Jobs {
		if !job.Status.IsTerminal() {
			return OrderStatusActive
		}
		if job.Status == JobStatusCompleted {
			succeeded = true
		}
	}
	if succeeded {
		return OrderStatusCompleted
	}
	return OrderStatusActive
}

// Clone returns a deep copy safe to hand to readers outside the store.
func (o *Order) Clone() Order {
	out := *o
	out.Branding = o.Branding.Clone()
	out.Jobs = make([]ProcessingJob, len(o.Jobs))
	for i, job := range o.Jobs {
		out.Jobs[i] = job.Clone()
	}
	return out
}

// JobIndex returns the position of the job in the order, or -1.
func (o *Order) JobIndex(jobID string) int {
	for i := range o.Jobs {
		if o.Jobs[i].ID == jobID {
			return i
		}
	}
	return -1
}

// Counts returns how many jobs are completed and failed.
func (o *Order) Counts() (completed, failed int) {
	for _, job := range o.Jobs {
		switch job.Status {
		case JobStatusCompleted:
			completed++
		case JobStatusFailed:
			failed++
		}
	}
	return completed, failed
}
