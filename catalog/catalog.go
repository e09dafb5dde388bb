// Package catalog serves the pre-fetched set and card records stored as flat
// JSON files under the data directory:
//
//	sets.json          index of all sets
//	sets/<id>.json     one set, including the ids of its cards
//	cards/<id>.json    one card
//	cards-index.json   compact index of every card, used for local search
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned when a set or card file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidID is returned for ids that could escape the data directory.
	ErrInvalidID = errors.New("invalid id")
)

// Default number of card files read concurrently by CardsByID.
const defaultBatchConcurrency = 8

// Store reads catalog files from a data directory.
// The card index is read once and kept in memory until Invalidate is called.
type Store struct {
	dataPath    string
	log         zerolog.Logger
	concurrency int

	mu     sync.RWMutex
	index  []CardIndexEntry
	folded []foldedEntry
}

// New creates a Store rooted at dataPath.
func New(dataPath string, log zerolog.Logger) *Store {
	return &Store{
		dataPath:    dataPath,
		log:         log.With().Str("component", "catalog").Logger(),
		concurrency: defaultBatchConcurrency,
	}
}

// SetsIndex returns the raw contents of sets.json.
func (s *Store) SetsIndex() (json.RawMessage, error) {
	return s.readJSON(filepath.Join(s.dataPath, "sets.json"))
}

// Set returns the raw contents of sets/<id>.json.
func (s *Store) Set(id string) (json.RawMessage, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("set %q: %w", id, ErrInvalidID)
	}
	data, err := s.readJSON(filepath.Join(s.dataPath, "sets", id+".json"))
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", id, err)
	}
	return data, nil
}

// SetDetail returns sets/<id>.json decoded.
func (s *Store) SetDetail(id string) (*SetDetail, error) {
	raw, err := s.Set(id)
	if err != nil {
		return nil, err
	}
	var set SetDetail
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("failed to decode set %s: %w", id, err)
	}
	return &set, nil
}

// Card returns the raw contents of cards/<id>.json.
func (s *Store) Card(id string) (json.RawMessage, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("card %q: %w", id, ErrInvalidID)
	}
	data, err := s.readJSON(filepath.Join(s.dataPath, "cards", id+".json"))
	if err != nil {
		return nil, fmt.Errorf("card %s: %w", id, err)
	}
	return data, nil
}

// CardsByID returns the cards for ids in the same order. Missing or invalid
// ids are skipped.
func (s *Store) CardsByID(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	results := make([]json.RawMessage, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			card, err := s.Card(id)
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidID) {
				s.log.Debug().Str("card_id", id).Msg("Skipping missing card in batch")
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = card
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	cards := make([]json.RawMessage, 0, len(ids))
	for _, card := range results {
		if card != nil {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

// readJSON reads a file and checks that it holds valid JSON.
func (s *Store) readJSON(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s does not contain valid JSON", path)
	}
	return json.RawMessage(data), nil
}

// ValidID reports whether id can name a set or card file. Ids that are
// empty or could name a path outside the set/card directories are rejected.
func ValidID(id string) bool {
	if id == "" || id == "." || strings.Contains(id, "..") {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
