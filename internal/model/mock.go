package model

import (
	"image"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

// mockBackend fabricates plausible predictions when no model can be loaded.
type mockBackend struct {
	species []MockSpecies
	latency time.Duration
	sleep   func(time.Duration)

	mu  sync.Mutex
	rng *rand.Rand
}

func newMockBackend(species []MockSpecies, latency time.Duration, seed uint64) *mockBackend {
	if len(species) == 0 {
		species = DefaultMockSpecies
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &mockBackend{
		species: slices.Clone(species),
		latency: latency,
		sleep:   time.Sleep,
		rng:     rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

func (m *mockBackend) mode() Mode { return ModeMock }

// prepare only validates; decoding already succeeded at this point.
func (m *mockBackend) prepare(image.Image) (*Input, error) {
	return &Input{Valid: true}, nil
}

func (m *mockBackend) infer(*Input) (Prediction, error) {
	if m.latency > 0 {
		m.sleep(m.latency)
	}

	m.mu.Lock()
	top := make([]Candidate, len(m.species))
	for i, sp := range m.species {
		conf := sp.Min + m.rng.Float64()*(sp.Max-sp.Min)
		top[i] = Candidate{Fish: sp.Name, Confidence: math.Round(conf*1e4) / 1e4}
	}
	m.mu.Unlock()

	slices.SortStableFunc(top, func(a, b Candidate) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})
	for i := range top {
		top[i].Rank = i + 1
	}

	return Prediction{
		PredictedFish:  top[0].Fish,
		Confidence:     top[0].Confidence,
		TopPredictions: top,
		Success:        true,
		ModelType:      ModeMock,
	}, nil
}

func (m *mockBackend) close() error { return nil }
