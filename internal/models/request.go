package models

type CreateOrderRequest struct {
	// Optional display title. Defaults to "<task label> <n>".
	Title string `json:"title,omitempty" example:"2022 Audi Q5"`
	// TaskType is one of bg-replacement, plate-blur or interior.
	TaskType string `json:"task_type" binding:"required" example:"bg-replacement"`
	StudioID string `json:"studio_id" binding:"required" example:"white-infinity"`
}

type SetStudioRequest struct {
	StudioID string `json:"studio_id" binding:"required" example:"studio-04"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
