// Package convert turns a Keras .h5 model into the TensorFlow.js layout served
// to the web client, by driving the tensorflowjs_converter tool.
package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	ConverterBinary  = "tensorflowjs_converter"
	ConverterPackage = "tensorflowjs"
	ModelJSON        = "model.json"
)

var (
	// ErrConverterMissing is returned when tensorflowjs_converter is not on
	// PATH and installing it did not help.
	ErrConverterMissing = errors.New("tensorflowjs converter not found")
	// ErrOutputMissing is returned when the converter ran but model.json or a
	// weight shard it references is absent.
	ErrOutputMissing = errors.New("conversion output missing")
)

// Runner executes external commands.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) LookPath(name string) (string, error) { return exec.LookPath(name) }

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Converter struct {
	Runner Runner
	// Pip is the pip executable used to install the converter when missing.
	Pip string
}

// New returns a Converter that runs real commands.
func New(pip string) *Converter {
	if pip == "" {
		pip = "pip"
	}
	return &Converter{Runner: execRunner{}, Pip: pip}
}

// Convert writes the TensorFlow.js form of input into outputDir and returns
// the produced files: model.json followed by its weight shards.
func (c *Converter) Convert(ctx context.Context, input, outputDir string) ([]string, error) {
	if _, err := os.Stat(input); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	bin, err := c.ensureConverter(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	log.Info().Str("input", input).Str("output", outputDir).Msg("converting model to TensorFlow.js format")
	out, err := c.Runner.Run(ctx, bin, "--input_format", "keras", input, outputDir)
	if err != nil {
		return nil, fmt.Errorf("conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	files, err := Validate(outputDir)
	if err != nil {
		return nil, err
	}
	log.Info().Strs("files", files).Msg("conversion successful")
	return files, nil
}

func (c *Converter) ensureConverter(ctx context.Context) (string, error) {
	if bin, err := c.Runner.LookPath(ConverterBinary); err == nil {
		return bin, nil
	}

	log.Warn().Str("pip", c.Pip).Msg("tensorflowjs converter not found, installing")
	if out, err := c.Runner.Run(ctx, c.Pip, "install", ConverterPackage); err != nil {
		log.Error().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("pip install failed")
		return "", fmt.Errorf("%w: pip install failed: %v", ErrConverterMissing, err)
	}

	bin, err := c.Runner.LookPath(ConverterBinary)
	if err != nil {
		return "", fmt.Errorf("%w: still not on PATH after install", ErrConverterMissing)
	}
	return bin, nil
}

type modelManifest struct {
	WeightsManifest []struct {
		Paths []string `json:"paths"`
	} `json:"weightsManifest"`
}

// Validate checks that dir holds model.json and every weight shard it lists,
// with at least one .bin shard.
func Validate(dir string) ([]string, error) {
	manifestPath := filepath.Join(dir, ModelJSON)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOutputMissing, ModelJSON, err)
	}

	var manifest modelManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ModelJSON, err)
	}

	files := []string{manifestPath}
	bins := 0
	for _, group := range manifest.WeightsManifest {
		for _, p := range group.Paths {
			shard := filepath.Join(dir, filepath.FromSlash(p))
			if _, err := os.Stat(shard); err != nil {
				return nil, fmt.Errorf("%w: weight shard %s", ErrOutputMissing, p)
			}
			if strings.HasSuffix(p, ".bin") {
				bins++
			}
			files = append(files, shard)
		}
	}
	if bins == 0 {
		return nil, fmt.Errorf("%w: no .bin weight shards listed in %s", ErrOutputMissing, ModelJSON)
	}
	return files, nil
}
