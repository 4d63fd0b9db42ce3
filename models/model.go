// Package models - Definitions for model output class styles and sets.
package models

// ModelFamily identifies the naming convention / dataset a model was trained on.
type ModelFamily string

const (
	// ModelFamilyCOCO is the 80 COCO classes + background.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyYOLO is the 80 COCO classes, no background.
	ModelFamilyYOLO ModelFamily = "yolo"
	// ModelFamilyVOC is the 20 Pascal VOC classes + background.
	ModelFamilyVOC ModelFamily = "voc"
	// ModelFamilyCustom is a class list loaded from a names file.
	ModelFamilyCustom ModelFamily = "custom"
)
