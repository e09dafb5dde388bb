package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tcg_catalog/catalog"
)

// priceFields are marketplace price blocks dropped from card files.
var priceFields = []string{"tcgplayer", "cardmarket"}

var splitCmd = &cobra.Command{
	Use:   "split <cards.json>",
	Short: "Split an upstream card dump into per-card files",
	Long: `Splits a {"data": [...]} card dump into cards/<id>.json files without
price data, then records the card ids in sets/<setId>.json.`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func runSplit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	result, err := splitCards(cfg.DataPath, data)
	if err != nil {
		return err
	}
	logger.Info().Int("cards", len(result.CardIDs)).Str("set", result.SetID).Msg("Created card files")

	if result.SetID == "" {
		return nil
	}
	if err := recordSetCards(cfg.DataPath, result.SetID, result.CardIDs); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			logger.Warn().Str("set", result.SetID).Msg("Set file not found, card references not recorded")
			return nil
		}
		return err
	}
	logger.Info().Str("set", result.SetID).Int("cards", len(result.CardIDs)).Msg("Updated set card references")
	return nil
}

type cardDump struct {
	Data []json.RawMessage `json:"data"`
}

type splitResult struct {
	SetID   string
	CardIDs []string
}

// splitCards writes every card of a dump to <dataPath>/cards/<id>.json. The
// set id is taken from the first card that names one.
func splitCards(dataPath string, dump []byte) (*splitResult, error) {
	var d cardDump
	if err := json.Unmarshal(dump, &d); err != nil || d.Data == nil {
		return nil, errors.New(`invalid card dump: expected {"data": [...]}`)
	}

	cardsDir := filepath.Join(dataPath, "cards")
	result := &splitResult{CardIDs: make([]string, 0, len(d.Data))}

	for i, raw := range d.Data {
		var card catalog.Card
		if err := json.Unmarshal(raw, &card); err != nil {
			return nil, fmt.Errorf("card %d: %w", i, err)
		}
		if card.ID == "" {
			return nil, fmt.Errorf("card %d has no id", i)
		}
		if !catalog.ValidID(card.ID) {
			return nil, fmt.Errorf("card %d id %q: %w", i, card.ID, catalog.ErrInvalidID)
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("card %s: %w", card.ID, err)
		}
		for _, f := range priceFields {
			delete(fields, f)
		}

		if err := writeJSONFile(filepath.Join(cardsDir, card.ID+".json"), fields, true); err != nil {
			return nil, err
		}

		result.CardIDs = append(result.CardIDs, card.ID)
		if result.SetID == "" && card.Set != nil {
			result.SetID = card.Set.ID
		}
	}

	return result, nil
}

// recordSetCards replaces the cards list of sets/<setID>.json, keeping every
// other field of the file.
func recordSetCards(dataPath, setID string, cardIDs []string) error {
	if !catalog.ValidID(setID) {
		return fmt.Errorf("set %q: %w", setID, catalog.ErrInvalidID)
	}
	path := filepath.Join(dataPath, "sets", setID+".json")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("set %s: %w", setID, catalog.ErrNotFound)
	}
	if err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	ids, err := json.Marshal(cardIDs)
	if err != nil {
		return err
	}
	fields["cards"] = ids

	return writeJSONFile(path, fields, true)
}
