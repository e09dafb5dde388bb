package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"tcg_catalog/catalog"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build cards-index.json from the card files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, err = writeIndex(cfg.DataPath)
		return err
	},
}

// writeIndex builds the card index of dataPath and writes it next to the
// cards directory.
func writeIndex(dataPath string) (int, error) {
	index, skipped, err := catalog.BuildIndex(filepath.Join(dataPath, "cards"))
	if err != nil {
		return 0, err
	}
	logger.Info().Int("cards", len(index)).Int("skipped", skipped).Msg("Built card index")

	path := filepath.Join(dataPath, catalog.IndexFileName)
	if err := writeJSONFile(path, index, false); err != nil {
		return 0, err
	}
	logger.Info().Str("path", path).Msg("Wrote card index")
	return len(index), nil
}
