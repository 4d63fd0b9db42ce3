// Package inference - Inference engine interface and implementations
package inference

import "github.com/nvr-ai/go-detect/config"

// EngineType is the type of the engine
type EngineType string

const (
	// EngineDarknet runs darknet YOLO networks through the OpenCV DNN module.
	EngineDarknet EngineType = config.EngineDarknet
	// EngineONNX runs ONNX detectors through the onnxruntime library.
	EngineONNX EngineType = config.EngineONNX
	// EngineClassifier runs a whole-image TensorFlow classifier through the OpenCV DNN module.
	EngineClassifier EngineType = config.EngineClassifier
)

// Engines is a list of all supported engines
var Engines = []EngineType{EngineDarknet, EngineONNX, EngineClassifier}
