package config

import (
	"time"

	"github.com/Brownie44l1/fishmate-api/internal/model"
	"github.com/Brownie44l1/fishmate-api/internal/store"
	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("model.path", "models/fish_mate_model.onnx")
	v.SetDefault("model.metadata_path", "")
	v.SetDefault("model.runtime_library", "")
	v.SetDefault("model.image_size", 224)
	v.SetDefault("model.max_pixels", model.DefaultMaxPixels)
	v.SetDefault("model.top_k", 3)
	v.SetDefault("model.labels", model.DefaultLabels)

	v.SetDefault("mock.latency", time.Second)
	v.SetDefault("mock.species", mockSpeciesMaps())

	v.SetDefault("zones.default_k", 3)
	v.SetDefault("zones.seed", 42)
	v.SetDefault("zones.n_init", 10)
	v.SetDefault("zones.max_iter", 300)
	v.SetDefault("zones.heatmap_limit", 100)

	v.SetDefault("datasets.ttl", 30*time.Minute)
	v.SetDefault("datasets.max_entries", store.DefaultMaxEntries)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// mockSpeciesMaps renders the species defaults the way they would appear in yaml,
// so viper merges them with file values consistently.
func mockSpeciesMaps() []map[string]any {
	out := make([]map[string]any, 0, len(model.DefaultMockSpecies))
	for _, sp := range model.DefaultMockSpecies {
		out = append(out, map[string]any{"name": sp.Name, "min": sp.Min, "max": sp.Max})
	}
	return out
}
