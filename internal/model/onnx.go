package model

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Session runs a loaded model on one preprocessed input.
type Session interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

// SessionOpener opens a Session for a model artifact.
type SessionOpener func(modelPath string, meta Metadata) (Session, error)

// onnxSession owns an ONNX runtime session with pre-allocated tensors. The
// tensors are shared between calls, so Run is serialised.
type onnxSession struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// ONNXOpener returns a SessionOpener backed by onnxruntime. runtimeLibrary is
// the path of the onnxruntime shared library; empty uses the platform default.
func ONNXOpener(runtimeLibrary string) SessionOpener {
	return func(modelPath string, meta Metadata) (Session, error) {
		return openONNX(modelPath, meta, runtimeLibrary)
	}
}

func openONNX(modelPath string, meta Metadata, runtimeLibrary string) (*onnxSession, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model artifact unavailable: %w", err)
	}

	if !ort.IsInitialized() {
		if runtimeLibrary != "" {
			ort.SetSharedLibraryPath(runtimeLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxSession{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *onnxSession) Run(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.inputTensor.GetData()
	if len(input) != len(in) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(in))
	}
	copy(in, input)

	if err := s.session.Run(); err != nil {
		return nil, err
	}

	out := s.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (s *onnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	var err error
	if s.session != nil {
		err = s.session.Destroy()
	}
	if envErr := ort.DestroyEnvironment(); err == nil {
		err = envErr
	}
	return err
}
