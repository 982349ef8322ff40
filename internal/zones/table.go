package zones

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrSchema is returned when a table lacks a required column or holds a
	// non-numeric value in one.
	ErrSchema = errors.New("schema error")
	// ErrClustering is returned when the table cannot be split into k zones.
	ErrClustering = errors.New("clustering error")
	// ErrInvalidCSV is returned by ParseCSV for content that is not a CSV table.
	ErrInvalidCSV = errors.New("invalid csv")
)

// Column aliases, matched case-insensitively. The first entries are the
// headers used by the INCOIS PFZ exports.
var (
	LatitudeColumns  = []string{"Lat_dd_dec", "latitude", "lat"}
	LongitudeColumns = []string{"Long_DD_dec", "longitude", "lon", "lng", "long"}
	DepthColumns     = []string{"depth"}
)

// Table is an uploaded sample table. Columns beyond the required ones are kept
// but ignored by the analyzer.
type Table struct {
	Header []string
	Rows   [][]string
}

// Sample is one geolocated depth reading.
type Sample struct {
	Lat   float64
	Lon   float64
	Depth float64
}

// ParseCSV reads a header line followed by data rows. Rows with a different
// field count than the header are rejected.
func ParseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidCSV)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return &Table{Header: header, Rows: records[1:]}, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Samples extracts latitude, longitude and depth from every row.
func (t *Table) Samples() ([]Sample, error) {
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
	depthIdx, err := t.column("depth", DepthColumns)
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(t.Rows))
	for i, row := range t.Rows {
		var s Sample
		if s.Lat, err = cell(row, i, latIdx, t.Header); err != nil {
			return nil, err
		}
		if s.Lon, err = cell(row, i, lonIdx, t.Header); err != nil {
			return nil, err
		}
		if s.Depth, err = cell(row, i, depthIdx, t.Header); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (t *Table) column(field string, aliases []string) (int, error) {
	for _, alias := range aliases {
		for i, h := range t.Header {
			if strings.EqualFold(h, alias) {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: missing %s column (one of %s)", ErrSchema, field, strings.Join(aliases, ", "))
}

func cell(row []string, rowIdx, colIdx int, header []string) (float64, error) {
	if colIdx >= len(row) {
		return 0, fmt.Errorf("%w: row %d has no %s value", ErrSchema, rowIdx+1, header[colIdx])
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[colIdx]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: row %d: %s is not a number: %q", ErrSchema, rowIdx+1, header[colIdx], row[colIdx])
	}
	return v, nil
}
