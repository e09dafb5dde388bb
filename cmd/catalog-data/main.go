// catalog-data prepares the card data directory served by the catalog:
// splitting upstream dumps into per-card files, building the card index and
// mirroring card images.
//
// Usage:
//
//	catalog-data fetch base1
//	catalog-data split data/cards/base1-cards.json
//	catalog-data index
//	catalog-data images base1 --out static/images
package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tcg_catalog/config"
)

var (
	configPath string
	dataPath   string
	logLevel   string

	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

var rootCmd = &cobra.Command{
	Use:           "catalog-data",
	Short:         "Prepare the local card data directory",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "catalog.json", "catalog server config file")
	rootCmd.PersistentFlags().StringVarP(&dataPath, "data", "d", "", "data directory (defaults to the config's data_path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")

	rootCmd.AddCommand(splitCmd, indexCmd, fetchCmd, imagesCmd)
}

// loadConfig reads the server config if present, applies the environment
// and the --data flag.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(".env"); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	if dataPath != "" {
		cfg.DataPath = dataPath
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("catalog-data failed")
		stop()
		os.Exit(1)
	}
}
