package inference

import (
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// Initialize loads the ONNX Runtime shared library at libPath and sets up the
// environment. Later calls are no-ops until Shutdown.
func Initialize(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Options controls how a session is created
type Options struct {
	// CoreML requests the CoreML execution provider, falling back to CPU.
	CoreML bool
	Logger *slog.Logger
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a new inference session from an ONNX model
func NewSession(modelPath string, inputNames, outputNames []string, opts Options) (*Session, error) {
	if !initialized {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	provider := "cpu"
	if opts.CoreML {
		// Flag 0 = default settings, use Neural Engine + GPU
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			logger.Warn("CoreML unavailable, using CPU", "model", modelPath, "error", err)
		} else {
			provider = "coreml"
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}
	logger.Debug("inference session created", "model", modelPath, "provider", provider)

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	data := make([]T, size)
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// TensorInfo describes one model input or output
type TensorInfo struct {
	Name  string
	Shape []int64
	Type  string
}

// ModelInfo describes an ONNX model file
type ModelInfo struct {
	Path     string
	Producer string
	Inputs   []TensorInfo
	Outputs  []TensorInfo
}

// Describe reads the inputs, outputs and producer of the model at path.
func Describe(path string) (ModelInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to read model info for %s: %w", path, err)
	}

	info := ModelInfo{Path: path}
	for _, in := range inputs {
		info.Inputs = append(info.Inputs, TensorInfo{Name: in.Name, Shape: in.Dimensions, Type: fmt.Sprint(in.DataType)})
	}
	for _, out := range outputs {
		info.Outputs = append(info.Outputs, TensorInfo{Name: out.Name, Shape: out.Dimensions, Type: fmt.Sprint(out.DataType)})
	}

	metadata, err := ort.GetModelMetadata(path)
	if err == nil {
		defer metadata.Destroy()
		if producer, err := metadata.GetProducerName(); err == nil {
			info.Producer = producer
		}
	}
	return info, nil
}
