package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/fishmate-api/internal/logging"
	"github.com/Brownie44l1/fishmate-api/internal/zones"
)

func main() {
	var (
		input  string
		output string
		limit  int
	)

	rootCmd := &cobra.Command{
		Use:           "fishmate-heatmap",
		Short:         "Build weighted heat-map points from a PFZ CSV export",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup("info", true)
			n, err := run(input, output, limit)
			if err != nil {
				return err
			}
			log.Info().Int("points", n).Str("output", output).Msg("heat-map saved")
			return nil
		},
	}
	rootCmd.Flags().StringVar(&input, "input", "merged_pfz.csv", "PFZ CSV with Lat_dd_dec and Long_DD_dec columns")
	rootCmd.Flags().StringVar(&output, "output", "pfz_weighted.json", "Where to write the [lat, lon, weight] list")
	rootCmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of points, 0 for all")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("heat-map failed")
	}
}

func run(input, output string, limit int) (int, error) {
	f, err := os.Open(input)
	if err != nil {
		return 0, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	table, err := zones.ParseCSV(f)
	if err != nil {
		return 0, err
	}
	points, err := zones.Heatmap(table, limit)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(points)
	if err != nil {
		return 0, fmt.Errorf("failed to encode points: %w", err)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write output: %w", err)
	}
	return len(points), nil
}
