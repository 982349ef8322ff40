package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultModelPath is used when no model path is configured.
const DefaultModelPath = "models/fish_mate_model.onnx"

// MetadataPathFor returns the metadata file expected next to a model artifact.
func MetadataPathFor(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
}

// LoadMetadata reads a metadata file. A missing file yields a zero Metadata
// and no error; normalize fills it from defaults.
func LoadMetadata(path string) (Metadata, error) {
	var meta Metadata
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return meta, nil
}

// normalize fills unset metadata fields and checks that the input shape holds
// exactly one RGB image of ImageSize×ImageSize.
func (m Metadata) normalize(imageSize int, labels []string) (Metadata, error) {
	if len(m.Classes) == 0 {
		m.Classes = labels
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}

	if len(m.InputShape) == 0 {
		size := int64(imageSize)
		if m.ImageSize > 0 {
			size = int64(m.ImageSize)
		}
		if m.Layout == LayoutNCHW {
			m.InputShape = []int64{1, 3, size, size}
		} else {
			m.InputShape = []int64{1, size, size, 3}
		}
	}
	if len(m.InputShape) != 4 {
		return m, fmt.Errorf("input shape %v is not a 4-D image batch", m.InputShape)
	}
	// A dynamic batch dimension is pinned to a single image.
	if m.InputShape[0] <= 0 {
		m.InputShape = append([]int64{1}, m.InputShape[1:]...)
	}
	if m.InputShape[0] != 1 {
		return m, fmt.Errorf("input shape %v: batch size must be 1", m.InputShape)
	}

	if m.Layout == "" {
		if m.InputShape[1] == 3 {
			m.Layout = LayoutNCHW
		} else {
			m.Layout = LayoutNHWC
		}
	}
	var h, w, c int64
	switch m.Layout {
	case LayoutNHWC:
		h, w, c = m.InputShape[1], m.InputShape[2], m.InputShape[3]
	case LayoutNCHW:
		c, h, w = m.InputShape[1], m.InputShape[2], m.InputShape[3]
	default:
		return m, fmt.Errorf("unsupported layout %q", m.Layout)
	}
	if c != 3 || h <= 0 || h != w {
		return m, fmt.Errorf("input shape %v is not a square RGB image in %s layout", m.InputShape, m.Layout)
	}
	if m.ImageSize == 0 {
		m.ImageSize = int(h)
	}
	if int64(m.ImageSize) != h {
		return m, fmt.Errorf("image size %d does not match input shape %v", m.ImageSize, m.InputShape)
	}

	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
	if m.OutputShape[0] <= 0 {
		m.OutputShape = append([]int64{1}, m.OutputShape[1:]...)
	}
	// A dynamic class dimension takes the label count.
	if len(m.OutputShape) == 2 && m.OutputShape[1] <= 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
	for _, d := range m.OutputShape[1:] {
		if d <= 0 {
			return m, fmt.Errorf("output shape %v has a dynamic dimension that cannot be resolved", m.OutputShape)
		}
	}
	return m, nil
}

// outputSize is the number of scores one inference produces.
func (m Metadata) outputSize() int {
	n := int64(1)
	for _, d := range m.OutputShape {
		n *= d
	}
	return int(n)
}

func (m Metadata) inputSize() int {
	n := int64(1)
	for _, d := range m.InputShape {
		n *= d
	}
	return int(n)
}
