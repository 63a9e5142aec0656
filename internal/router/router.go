// Package router picks the generation strategy for a job. Everything here is
// pure: no I/O, no errors, no panics.
package router

import "dealer-studio-backend/internal/models"

type Kind string

const (
	KindExterior Kind = "exterior-composite"
	KindInterior Kind = "interior-retouch"
	KindDetail   Kind = "detail-composite"
)

// Strategy is an instruction template plus its input requirements.
type Strategy struct {
	Kind Kind
	// RequiresPlate is true when the studio reference plate must be sent.
	RequiresPlate bool
	// LockGeometry is true when the output must keep the exact camera
	// position of the source photo. Detail shots only need the backdrop.
	LockGeometry bool
}

var (
	exteriorStrategy = Strategy{Kind: KindExterior, RequiresPlate: true, LockGeometry: true}
	interiorStrategy = Strategy{Kind: KindInterior, RequiresPlate: true, LockGeometry: true}
	detailStrategy   = Strategy{Kind: KindDetail, RequiresPlate: true, LockGeometry: false}
)

func Exterior() Strategy { return exteriorStrategy }
func Interior() Strategy { return interiorStrategy }
func Detail() Strategy   { return detailStrategy }

// Route selects the strategy. First match wins:
//  1. interior task or INTERIOR_CAR → interior
//  2. DETAIL_CAR → detail
//  3. anything else, including unknown labels → exterior
func Route(category models.Category, taskType models.TaskType) Strategy {
	if taskType == models.TaskInteriorEnhancement || category == models.CategoryInterior {
		return interiorStrategy
	}
	if category == models.CategoryDetail {
		return detailStrategy
	}
	return exteriorStrategy
}

var angleCategories = map[models.CameraAngle]models.Category{
	models.AngleFront:        models.CategoryExterior,
	models.AngleRear:         models.CategoryExterior,
	models.AngleLeft:         models.CategoryExterior,
	models.AngleRight:        models.CategoryExterior,
	models.AngleFrontLeft34:  models.CategoryExterior,
	models.AngleFrontRight34: models.CategoryExterior,
	models.AngleRearLeft34:   models.CategoryExterior,
	models.AngleRearRight34:  models.CategoryExterior,
	models.AngleInterior:     models.CategoryInterior,
	models.AngleDetail:       models.CategoryDetail,
	models.AngleDoorOpen:     models.CategoryDoorOpen,
	models.AngleTrunkOpen:    models.CategoryTrunkOpen,
	models.AngleHoodOpen:     models.CategoryHoodOpen,
}

// CategoryForAngle maps a pre-assigned camera angle onto the classifier
// vocabulary so tagged jobs route the same way as classified ones.
func CategoryForAngle(angle models.CameraAngle) models.Category {
	if c, ok := angleCategories[angle]; ok {
		return c
	}
	return models.CategoryExterior
}

// AngleForCategory refines an uploaded job's coarse angle from its category.
// Exterior and OTHER carry no viewpoint information, so fallback is kept.
func AngleForCategory(category models.Category, fallback models.CameraAngle) models.CameraAngle {
	switch category {
	case models.CategoryInterior:
		return models.AngleInterior
	case models.CategoryDetail:
		return models.AngleDetail
	case models.CategoryDoorOpen:
		return models.AngleDoorOpen
	case models.CategoryTrunkOpen:
		return models.AngleTrunkOpen
	case models.CategoryHoodOpen:
		return models.AngleHoodOpen
	default:
		return fallback
	}
}
