package model

// Mode tells which backend produced a prediction.
type Mode string

const (
	ModeReal  Mode = "real"
	ModeMock  Mode = "mock"
	ModeError Mode = "error"
)

// UnknownLabel is reported for class indices without a label and for failed predictions.
const UnknownLabel = "Unknown"

// Tensor layouts accepted in Metadata.Layout.
const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

// Metadata describes the exported model. It is read from a JSON file stored
// next to the model artifact.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	Layout      string   `json:"layout,omitempty"`
}

// MockSpecies is a species the mock backend reports, with the range its
// confidence is drawn from.
type MockSpecies struct {
	Name string  `json:"name" mapstructure:"name"`
	Min  float64 `json:"min" mapstructure:"min"`
	Max  float64 `json:"max" mapstructure:"max"`
}

// Input is a preprocessed image. The mock backend only validates images, so
// its inputs carry no tensor.
type Input struct {
	Valid  bool
	Tensor []float32
	Shape  []int64
}

// TensorRequest carries an already preprocessed image.
type TensorRequest struct {
	Image []float32 `json:"image"`
}

// Candidate is one ranked class.
type Candidate struct {
	Rank       int     `json:"rank"`
	Fish       string  `json:"fish"`
	Confidence float64 `json:"confidence"`
}

// Prediction is the outcome of a predict call. Failures are reported through
// ModelType "error" and Error rather than a Go error.
type Prediction struct {
	PredictedFish  string      `json:"predicted_fish"`
	Confidence     float64     `json:"confidence"`
	TopPredictions []Candidate `json:"top_predictions"`
	Success        bool        `json:"success"`
	ModelType      Mode        `json:"model_type"`
	Error          string      `json:"error,omitempty"`
}

// DefaultLabels are the output classes of the fish_mate model.
var DefaultLabels = []string{
	"Mackerel", "Sardine", "Pomfret", "Tuna", "Kingfish",
	"Snapper", "Grouper", "Barracuda", "Sole", "Anchovy",
	"Hilsa", "Rohu", "Catla", "Mrigal", "Carp",
}

// DefaultMockSpecies is what the mock backend reports unless configured otherwise.
var DefaultMockSpecies = []MockSpecies{
	{Name: "Prawns", Min: 0.80, Max: 0.90},
	{Name: "Pomfret", Min: 0.70, Max: 0.80},
	{Name: "Mackerel", Min: 0.60, Max: 0.70},
}
