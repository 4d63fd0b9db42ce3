package inference

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-detect/config"
)

// newSessionOptions builds the onnxruntime session options for a model.
//
// Execution providers let onnxruntime use specialised hardware. CPU needs no
// provider; CUDA and CoreML are appended when requested and fail the load if
// the runtime was built without them.
//
// Arguments:
//   - cfg: The model configuration.
//
// Returns:
//   - *ort.SessionOptions: The options. The caller must Destroy them.
//   - error: An error if an option cannot be applied.
func newSessionOptions(cfg config.Model) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}

	if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set graph optimization level")
	}

	switch cfg.Provider {
	case config.ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "create CUDA options")
		}
		defer cuda.Destroy()

		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "enable CUDA")
		}
	case config.ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "enable CoreML")
		}
	}

	return options, nil
}
