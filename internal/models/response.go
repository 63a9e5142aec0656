package models

import "time"

type OrderResponse struct {
	ID        string        `json:"order_id"`
	Title     string        `json:"title"`
	TaskType  TaskType      `json:"task_type"`
	StudioID  string        `json:"studio_id"`
	Status    OrderStatus   `json:"status"`
	Branding  bool          `json:"branding"`
	Jobs      []JobResponse `json:"jobs"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type OrderListResponse struct {
	Orders []OrderSummary `json:"orders"`
}

type OrderSummary struct {
	ID        string      `json:"order_id"`
	Title     string      `json:"title"`
	TaskType  TaskType    `json:"task_type"`
	Status    OrderStatus `json:"status"`
	Total     int         `json:"total_jobs"`
	Completed int         `json:"completed_jobs"`
	Failed    int         `json:"failed_jobs"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type JobResponse struct {
	ID           string      `json:"job_id"`
	Angle        CameraAngle `json:"angle"`
	Category     Category    `json:"category,omitempty"`
	Status       JobStatus   `json:"status"`
	Error        string      `json:"error,omitempty"`
	HasProcessed bool        `json:"has_processed"`
	CreatedAt    time.Time   `json:"created_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
}

type UploadResponse struct {
	OrderID string        `json:"order_id"`
	Jobs    []JobResponse `json:"jobs"`
}

type ProcessResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Total   int    `json:"total"`
}

type LogLineResponse struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	Error   bool      `json:"error,omitempty"`
}

type ProgressResponse struct {
	OrderID      string            `json:"order_id"`
	State        string            `json:"state"`
	Processed    int               `json:"processed"`
	Total        int               `json:"total"`
	Percent      int               `json:"percent"`
	CurrentJobID string            `json:"current_job_id,omitempty"`
	Cancelled    bool              `json:"cancelled"`
	Logs         []LogLineResponse `json:"logs"`
}

type StudioResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
}

type StudiosResponse struct {
	Studios []StudioResponse `json:"studios"`
}

type BrandingResponse struct {
	Enabled  bool   `json:"enabled"`
	HasLogo  bool   `json:"has_logo"`
	MimeType string `json:"mime_type,omitempty"`
	Active   bool   `json:"active"`
}

type ClassifyResponse struct {
	Category   Category    `json:"category"`
	Angle      CameraAngle `json:"angle"`
	Confidence float64     `json:"confidence"`
	Fallback   bool        `json:"fallback"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type FilesResponse struct {
	Files []FileResponse `json:"files"`
}

type FileResponse struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Angle      string    `json:"angle"`
	StorageURL string    `json:"storage_url"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	CreatedAt  time.Time `json:"created_at"`
}
