package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fishmate-api/internal/zones"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "merged_pfz.csv")
	out := filepath.Join(dir, "pfz_weighted.json")
	csv := "Lat_dd_dec,Long_DD_dec,Zone\n" +
		"15.5,73.1,A\n" +
		"15.5,73.1,A\n" +
		"15.5,73.1,B\n" +
		"16,72.5,C\n"
	require.NoError(t, os.WriteFile(in, []byte(csv), 0o644))

	n, err := run(in, out, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `[[15.5,73.1,1],[16,72.5,0.3333333333333333]]`, string(data))
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := run(filepath.Join(dir, "missing.csv"), filepath.Join(dir, "out.json"), 10)
	assert.ErrorIs(t, err, os.ErrNotExist)

	in := filepath.Join(dir, "nolat.csv")
	require.NoError(t, os.WriteFile(in, []byte("x,y\n1,2\n"), 0o644))
	_, err = run(in, filepath.Join(dir, "out.json"), 10)
	assert.ErrorIs(t, err, zones.ErrSchema)
}
