// Package zones derives potential fishing zones from geolocated depth samples.
package zones

import (
	"gonum.org/v1/gonum/stat"
)

// Zone summarises one cluster of samples. AvgDepth is nil when no sample
// was assigned to the cluster.
type Zone struct {
	ID       int      `json:"zone_id"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	AvgDepth *float64 `json:"avg_depth"`
	Count    int      `json:"count"`
}

// Options tune the k-means partitioning.
type Options struct {
	Seed      uint64
	NInit     int
	MaxIter   int
	Tolerance float64
}

// DefaultOptions seeds with 42 and keeps the best of ten restarts.
func DefaultOptions() Options {
	return Options{
		Seed:      42,
		NInit:     10,
		MaxIter:   300,
		Tolerance: 1e-4,
	}
}

type Analyzer struct {
	opts Options
}

func NewAnalyzer(opts Options) *Analyzer {
	return &Analyzer{opts: opts}
}

// Analyze partitions the table's locations into k zones. Depth does not take
// part in the distance; it is averaged per zone afterwards. Zones are returned
// in cluster index order.
func (a *Analyzer) Analyze(t *Table, k int) ([]Zone, error) {
	samples, err := t.Samples()
	if err != nil {
		return nil, err
	}

	points := make([][]float64, len(samples))
	for i, s := range samples {
		points[i] = []float64{s.Lat, s.Lon}
	}

	p, err := kmeans(points, k, a.opts)
	if err != nil {
		return nil, err
	}

	depths := make([][]float64, k)
	for i, label := range p.labels {
		depths[label] = append(depths[label], samples[i].Depth)
	}

	zones := make([]Zone, k)
	for c := range k {
		zones[c] = Zone{
			ID:    c,
			Lat:   p.centers[c][0],
			Lon:   p.centers[c][1],
			Count: len(depths[c]),
		}
		if len(depths[c]) > 0 {
			avg := stat.Mean(depths[c], nil)
			zones[c].AvgDepth = &avg
		}
	}
	return zones, nil
}
