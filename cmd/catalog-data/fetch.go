package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"tcg_catalog/tcgapi"
)

// fetchPageSize is the upstream maximum; no set has more cards.
const fetchPageSize = 250

var fetchCmd = &cobra.Command{
	Use:   "fetch <setId>",
	Short: "Download a set's cards from the upstream API and split them",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setID := args[0]

	client := tcgapi.New(cfg.TCGAPI, logger)
	body, err := client.SearchCards(cmd.Context(), tcgapi.SearchParams{
		Q:        tcgapi.SetQuery(setID),
		PageSize: fetchPageSize,
	})
	if err != nil {
		return err
	}

	// Keep the raw response; the index build skips it.
	rawPath := filepath.Join(cfg.DataPath, "cards", setID+"-cards.json")
	if err := writeJSONFile(rawPath, body, true); err != nil {
		return err
	}
	logger.Info().Str("path", rawPath).Msg("Saved raw response")

	result, err := splitCards(cfg.DataPath, body)
	if err != nil {
		return err
	}
	logger.Info().Int("cards", len(result.CardIDs)).Msg("Created card files")

	if err := recordSetCards(cfg.DataPath, setID, result.CardIDs); err != nil {
		logger.Warn().Err(err).Str("set", setID).Msg("Card references not recorded")
	}
	return nil
}
