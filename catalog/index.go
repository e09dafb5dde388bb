package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// IndexFileName is the name of the compact card index in the data directory.
const IndexFileName = "cards-index.json"

// Index returns the card index, reading it from disk on first use.
func (s *Store) Index() ([]CardIndexEntry, error) {
	index, _, err := s.loadIndex()
	return index, err
}

// loadIndex returns the memoized index and its folded search fields.
func (s *Store) loadIndex() ([]CardIndexEntry, []foldedEntry, error) {
	s.mu.RLock()
	index, folded := s.index, s.folded
	s.mu.RUnlock()
	if index != nil {
		return index, folded, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, s.folded, nil
	}

	raw, err := s.readJSON(filepath.Join(s.dataPath, IndexFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("card index: %w", err)
	}

	entries := []CardIndexEntry{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, fmt.Errorf("failed to decode card index: %w", err)
	}

	s.log.Info().Int("cards", len(entries)).Msg("Loaded card index")
	s.index = entries
	s.folded = foldIndex(entries)
	return s.index, s.folded, nil
}

// Invalidate drops the in-memory card index so the next call to Index
// reads it again.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.index = nil
	s.folded = nil
	s.mu.Unlock()
}

// CardsInSet returns the index entries belonging to a set.
func (s *Store) CardsInSet(setID string) ([]CardIndexEntry, error) {
	index, err := s.Index()
	if err != nil {
		return nil, err
	}
	var cards []CardIndexEntry
	for _, entry := range index {
		if entry.SetID == setID {
			cards = append(cards, entry)
		}
	}
	return cards, nil
}

// BuildIndex reads every card file in cardsDir and returns the sorted index
// entries. Files without an id or name (such as bulk dumps) are skipped and
// counted.
func BuildIndex(cardsDir string) ([]CardIndexEntry, int, error) {
	files, err := filepath.Glob(filepath.Join(cardsDir, "*.json"))
	if err != nil {
		return nil, 0, err
	}

	index := make([]CardIndexEntry, 0, len(files))
	skipped := 0

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read %s: %w", file, err)
		}

		var card Card
		if err := json.Unmarshal(data, &card); err != nil || card.ID == "" || card.Name == "" {
			skipped++
			continue
		}
		index = append(index, card.IndexEntry())
	}

	SortIndex(index)
	return index, skipped, nil
}

// SortIndex orders entries by set id, then by card number.
func SortIndex(index []CardIndexEntry) {
	sort.SliceStable(index, func(i, j int) bool {
		a, b := index[i], index[j]
		if a.SetID != b.SetID {
			return a.SetID < b.SetID
		}
		return lessCardNumber(a.Number, b.Number)
	})
}

// lessCardNumber compares card numbers by their leading digits, so "2"
// sorts before "10". Numbers without leading digits ("TG01", "SV1") sort by
// their text after the numeric ones.
func lessCardNumber(a, b string) bool {
	na, okA := leadingInt(a)
	nb, okB := leadingInt(b)
	switch {
	case okA && okB:
		if na != nb {
			return na < nb
		}
		return a < b
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}

func leadingInt(s string) (int, bool) {
	end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		end = len(s)
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Lookup returns the index entry of a card.
func (s *Store) Lookup(id string) (CardIndexEntry, bool) {
	index, err := s.Index()
	if err != nil {
		return CardIndexEntry{}, false
	}
	for _, entry := range index {
		if entry.ID == id {
			return entry, true
		}
	}
	return CardIndexEntry{}, false
}

// CardName returns the name of a card, or "" if it is not in the index.
func (s *Store) CardName(id string) string {
	entry, _ := s.Lookup(id)
	return entry.Name
}
