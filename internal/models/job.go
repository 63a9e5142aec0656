package models

import (
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CameraAngle is the viewpoint tag assigned at capture time or refined by
// classification.
type CameraAngle string

const (
	AngleFront        CameraAngle = "front"
	AngleRear         CameraAngle = "rear"
	AngleLeft         CameraAngle = "left"
	AngleRight        CameraAngle = "right"
	AngleFrontLeft34  CameraAngle = "front_left_34"
	AngleFrontRight34 CameraAngle = "front_right_34"
	AngleRearLeft34   CameraAngle = "rear_left_34"
	AngleRearRight34  CameraAngle = "rear_right_34"
	AngleInterior     CameraAngle = "interior"
	AngleDetail       CameraAngle = "detail"
	AngleDoorOpen     CameraAngle = "door_open"
	AngleTrunkOpen    CameraAngle = "trunk_open"
	AngleHoodOpen     CameraAngle = "hood_open"
)

// DefaultUploadAngle is the coarse angle given to uploaded photos before
// classification refines it.
const DefaultUploadAngle = AngleFront

var cameraAngles = []CameraAngle{
	AngleFront, AngleRear, AngleLeft, AngleRight,
	AngleFrontLeft34, AngleFrontRight34, AngleRearLeft34, AngleRearRight34,
	AngleInterior, AngleDetail, AngleDoorOpen, AngleTrunkOpen, AngleHoodOpen,
}

func CameraAngles() []CameraAngle {
	out := make([]CameraAngle, len(cameraAngles))
	copy(out, cameraAngles)
	return out
}

func ParseCameraAngle(s string) (CameraAngle, bool) {
	v := CameraAngle(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range cameraAngles {
		if a == v {
			return a, true
		}
	}
	return "", false
}

// Label renders the angle for log lines, e.g. "front left 34".
func (a CameraAngle) Label() string {
	return strings.ReplaceAll(string(a), "_", " ")
}

// Category is the classifier's coarse vocabulary.
type Category string

const (
	CategoryExterior  Category = "EXTERIOR_CAR"
	CategoryInterior  Category = "INTERIOR_CAR"
	CategoryDetail    Category = "DETAIL_CAR"
	CategoryDoorOpen  Category = "DOOR_OPEN"
	CategoryTrunkOpen Category = "TRUNK_OPEN"
	CategoryHoodOpen  Category = "HOOD_OPEN"
	CategoryOther     Category = "OTHER"
)

var categories = []Category{
	CategoryExterior, CategoryInterior, CategoryDetail,
	CategoryDoorOpen, CategoryTrunkOpen, CategoryHoodOpen, CategoryOther,
}

func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory normalizes case and surrounding whitespace and reports whether
// the label belongs to the vocabulary.
func ParseCategory(s string) (Category, bool) {
	v := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range categories {
		if c == v {
			return c, true
		}
	}
	return "", false
}

type ProcessingJob struct {
	ID            string
	OriginalImage Image
	Angle         CameraAngle
	// AngleKnown is set for camera-captured or user-tagged photos; those skip
	// classification.
	AngleKnown     bool
	Category       Category
	ProcessedImage *Image
	Status         JobStatus
	Error          string
	CreatedAt      time.Time
	FinishedAt     time.Time
}

func (j ProcessingJob) Clone() ProcessingJob {
	out := j
	out.OriginalImage = j.OriginalImage.Clone()
	if j.ProcessedImage != nil {
		img := j.ProcessedImage.Clone()
		out.ProcessedImage = &img
	}
	return out
}
