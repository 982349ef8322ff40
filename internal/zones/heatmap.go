package zones

import (
	"encoding/json"
	"fmt"
	"slices"
)

// HeatPoint is a location weighted by how often it occurs in a table,
// relative to the most frequent location. It encodes as [lat, lon, weight].
type HeatPoint struct {
	Lat    float64
	Lon    float64
	Weight float64
	Count  int
}

func (p HeatPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.Lat, p.Lon, p.Weight})
}

// Heatmap counts identical coordinates and returns at most limit points,
// most frequent first. Equal counts keep their order of first appearance.
// A limit of zero or less returns every distinct location.
func Heatmap(t *Table, limit int) ([]HeatPoint, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: no table", ErrSchema)
	}
	latIdx, err := t.column("latitude", LatitudeColumns)
	if err != nil {
		return nil, err
	}
	lonIdx, err := t.column("longitude", LongitudeColumns)
	if err != nil {
		return nil, err
	}

	type key struct{ lat, lon float64 }
	index := make(map[key]int)
	var points []HeatPoint
	for i, row := range t.Rows {
		lat, err := cell(row, i, latIdx, t.Header)
		if err != nil {
			return nil, err
		}
		lon, err := cell(row, i, lonIdx, t.Header)
		if err != nil {
			return nil, err
		}
		k := key{lat, lon}
		if j, ok := index[k]; ok {
			points[j].Count++
			continue
		}
		index[k] = len(points)
		points = append(points, HeatPoint{Lat: lat, Lon: lon, Count: 1})
	}
	if len(points) == 0 {
		return []HeatPoint{}, nil
	}

	maxCount := slices.MaxFunc(points, func(a, b HeatPoint) int { return a.Count - b.Count }).Count
	for i := range points {
		points[i].Weight = float64(points[i].Count) / float64(maxCount)
	}

	slices.SortStableFunc(points, func(a, b HeatPoint) int { return b.Count - a.Count })
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}
