package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/fishmate-api/internal/convert"
	"github.com/Brownie44l1/fishmate-api/internal/logging"
)

func main() {
	var (
		input  string
		output string
		pip    string
		pretty bool
	)

	rootCmd := &cobra.Command{
		Use:           "fishmate-convert",
		Short:         "Convert the Keras fish model to TensorFlow.js format",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup("info", pretty)

			files, err := convert.New(pip).Convert(cmd.Context(), input, output)
			if err != nil {
				return err
			}
			for _, f := range files {
				log.Info().Str("file", f).Msg("created")
			}
			return nil
		},
	}
	rootCmd.Flags().StringVar(&input, "input", "./public/model/fish_mate_model.h5", "Keras model to convert")
	rootCmd.Flags().StringVar(&output, "output", "./public/model/", "Directory for model.json and weight shards")
	rootCmd.Flags().StringVar(&pip, "pip", "pip", "pip executable used to install tensorflowjs when missing")
	rootCmd.Flags().BoolVar(&pretty, "pretty", true, "Human readable log output")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal().Err(err).Msg("conversion failed")
	}
}
