// Package model classifies fish species from images. A Predictor runs either
// a real ONNX model or, when none can be loaded, a mock backend; the choice is
// made once in New.
package model

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrImageDecode is returned for bytes that do not decode to an image.
	ErrImageDecode = errors.New("image decode error")
	// ErrModelUnavailable is reported when the predictor holds no backend at all.
	ErrModelUnavailable = errors.New("model not loaded")
	// ErrInference is reported when the model fails while running.
	ErrInference = errors.New("inference error")
)

type backend interface {
	mode() Mode
	prepare(img image.Image) (*Input, error)
	infer(in *Input) (Prediction, error)
	close() error
}

// Config controls how New builds a Predictor. Zero values select defaults.
// MaxPixels bounds the decoded size of an image.
type Config struct {
	ModelPath    string
	MetadataPath string
	ImageSize    int
	TopK         int
	Labels       []string
	MaxPixels    int

	MockSpecies []MockSpecies
	MockLatency time.Duration
	MockSeed    uint64

	// Open loads the model; nil uses the ONNX runtime with its default library.
	Open SessionOpener
}

// Predictor is safe for concurrent use.
type Predictor struct {
	backend   backend
	modelPath string
	maxPixels int
}

// New never fails: when the model cannot be loaded it logs why and returns a
// predictor in mock mode.
func New(cfg Config) *Predictor {
	if cfg.ModelPath == "" {
		cfg.ModelPath = DefaultModelPath
	}
	if cfg.MetadataPath == "" {
		cfg.MetadataPath = MetadataPathFor(cfg.ModelPath)
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = 224
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = DefaultLabels
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = DefaultMaxPixels
	}
	if cfg.Open == nil {
		cfg.Open = ONNXOpener("")
	}

	p := &Predictor{modelPath: cfg.ModelPath, maxPixels: cfg.MaxPixels}

	rb, err := loadReal(cfg)
	if err != nil {
		log.Warn().Err(err).Str("model", cfg.ModelPath).Msg("falling back to mock fish predictor")
		p.backend = newMockBackend(cfg.MockSpecies, cfg.MockLatency, cfg.MockSeed)
		return p
	}

	log.Info().
		Str("model", cfg.ModelPath).
		Int("classes", len(rb.meta.Classes)).
		Int("image_size", rb.meta.ImageSize).
		Str("layout", rb.meta.Layout).
		Msg("fish prediction model loaded")
	p.backend = rb
	return p
}

func loadReal(cfg Config) (*realBackend, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	meta, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}
	meta, err = meta.normalize(cfg.ImageSize, cfg.Labels)
	if err != nil {
		return nil, fmt.Errorf("invalid model metadata: %w", err)
	}

	if n := meta.outputSize(); n != len(meta.Classes) {
		log.Warn().
			Int("outputs", n).
			Int("labels", len(meta.Classes)).
			Msg("model output size and label count differ, unlabeled classes report as Unknown")
	}

	session, err := cfg.Open(cfg.ModelPath, meta)
	if err != nil {
		return nil, err
	}
	return &realBackend{session: session, meta: meta, topK: cfg.TopK}, nil
}

// IsLoaded reports whether the predictor holds a backend, real or mock.
func (p *Predictor) IsLoaded() bool {
	return p != nil && p.backend != nil
}

// Mode returns the backend mode, or ModeError when nothing is loaded.
func (p *Predictor) Mode() Mode {
	if !p.IsLoaded() {
		return ModeError
	}
	return p.backend.mode()
}

// ModelPath returns the model artifact the predictor was configured with.
func (p *Predictor) ModelPath() string {
	if p == nil {
		return ""
	}
	return p.modelPath
}

// Labels returns the class labels of the real model, or nil in mock mode.
func (p *Predictor) Labels() []string {
	if rb, ok := p.realBackend(); ok {
		return slices.Clone(rb.meta.Classes)
	}
	return nil
}

// Preprocess decodes image bytes into the model input. In mock mode the
// returned Input only marks the image as valid.
func (p *Predictor) Preprocess(data []byte) (*Input, error) {
	if !p.IsLoaded() {
		return nil, ErrModelUnavailable
	}
	maxPixels := p.maxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	img, err := decodeImage(data, maxPixels)
	if err != nil {
		return nil, err
	}
	return p.backend.prepare(img)
}

// Predict classifies an image. Every failure is returned as a Prediction with
// ModelType ModeError.
func (p *Predictor) Predict(data []byte) Prediction {
	if !p.IsLoaded() {
		return ErrorPrediction(ErrModelUnavailable)
	}
	in, err := p.Preprocess(data)
	if err != nil {
		return ErrorPrediction(err)
	}
	pred, err := p.backend.infer(in)
	if err != nil {
		return ErrorPrediction(err)
	}
	return pred
}

// PredictTensor classifies an already preprocessed input. Only the real
// model can run raw tensors.
func (p *Predictor) PredictTensor(values []float32) Prediction {
	rb, ok := p.realBackend()
	if !ok {
		return ErrorPrediction(fmt.Errorf("%w: raw tensors need the real model", ErrModelUnavailable))
	}
	if want := rb.meta.inputSize(); len(values) != want {
		return ErrorPrediction(fmt.Errorf("expected %d values, got %d", want, len(values)))
	}
	pred, err := rb.infer(&Input{Valid: true, Tensor: values, Shape: rb.meta.InputShape})
	if err != nil {
		return ErrorPrediction(err)
	}
	return pred
}

// Close releases the model session.
func (p *Predictor) Close() error {
	if !p.IsLoaded() {
		return nil
	}
	return p.backend.close()
}

func (p *Predictor) realBackend() (*realBackend, bool) {
	if !p.IsLoaded() {
		return nil, false
	}
	rb, ok := p.backend.(*realBackend)
	return rb, ok
}

// ErrorPrediction converts err into a failed Prediction.
func ErrorPrediction(err error) Prediction {
	return Prediction{
		PredictedFish:  UnknownLabel,
		Confidence:     0,
		TopPredictions: []Candidate{},
		ModelType:      ModeError,
		Error:          err.Error(),
	}
}

type realBackend struct {
	session Session
	meta    Metadata
	topK    int
}

func (r *realBackend) mode() Mode { return ModeReal }

func (r *realBackend) prepare(img image.Image) (*Input, error) {
	return toTensor(img, r.meta), nil
}

func (r *realBackend) infer(in *Input) (Prediction, error) {
	scores, err := r.session.Run(in.Tensor)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(scores) == 0 {
		return Prediction{}, fmt.Errorf("%w: model returned no scores", ErrInference)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})

	k := min(r.topK, len(order))
	top := make([]Candidate, k)
	for i, idx := range order[:k] {
		top[i] = Candidate{Rank: i + 1, Fish: r.label(idx), Confidence: roundConfidence(scores[idx])}
	}

	return Prediction{
		PredictedFish:  top[0].Fish,
		Confidence:     top[0].Confidence,
		TopPredictions: top,
		Success:        true,
		ModelType:      ModeReal,
	}, nil
}

// roundConfidence keeps four decimals, as mock predictions do.
func roundConfidence(v float32) float64 {
	return math.Round(float64(v)*1e4) / 1e4
}

func (r *realBackend) label(idx int) string {
	if idx < len(r.meta.Classes) {
		return r.meta.Classes[idx]
	}
	return UnknownLabel
}

func (r *realBackend) close() error {
	return r.session.Close()
}
