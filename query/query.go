// Package query provides parsing and building of card search strings.
// The syntax supports:
//   - free text: pikachu matches card names, sets, series and types
//   - "" (exact match): "Pikachu V" matches the quoted name verbatim
//   - modifiers: type:fire, rarity:rare, series:base, is:pokemon, set:base1
//
// Only the first quoted segment counts; free text outside it is dropped.
// A modifier that repeats keeps its last value.
// Example: "Dark Charizard" rarity:common rarity:holo is:pokemon
package query

import (
	"encoding/json"
	"strings"
)

// FilterKey names a filterable card dimension.
type FilterKey string

const (
	FilterType      FilterKey = "type"
	FilterRarity    FilterKey = "rarity"
	FilterSeries    FilterKey = "series"
	FilterSupertype FilterKey = "supertype"
	FilterSet       FilterKey = "set"
)

// Filters maps a filter key to the value given by its modifier.
type Filters map[FilterKey]string

// ParsedSearch is the structured form of a search string.
type ParsedSearch struct {
	FreeText   string  `json:"query"`
	ExactMatch bool    `json:"exactMatch"`
	Filters    Filters `json:"filters"`
}

// IsEmpty reports whether the search has neither free text nor filters.
func (p ParsedSearch) IsEmpty() bool {
	return p.FreeText == "" && len(p.Filters) == 0
}

// String returns the canonical search string, see Build.
func (p ParsedSearch) String() string {
	return Build(p)
}

// Parse splits a search string into free text, the exact-match flag and
// modifier filters. It accepts any input.
func Parse(input string) ParsedSearch {
	result := ParsedSearch{
		Filters: Filters{},
	}

	if strings.TrimSpace(input) == "" {
		return result
	}

	var words []string
	for _, token := range newLexer(input).tokenize() {
		switch token.Type {
		case TokenQuoted:
			result.FreeText = token.Value
			result.ExactMatch = true
		case TokenWord:
			if key, value, ok := matchModifier(token.Value); ok {
				result.Filters[key] = value
				continue
			}
			words = append(words, token.Value)
		}
	}

	if !result.ExactMatch {
		result.FreeText = strings.Join(words, " ")
	}

	return result
}

// Build renders a ParsedSearch back into a search string: free text first,
// then modifiers in table order. Empty filter values are skipped.
func Build(p ParsedSearch) string {
	var parts []string

	if p.FreeText != "" {
		if p.ExactMatch {
			parts = append(parts, `"`+p.FreeText+`"`)
		} else {
			parts = append(parts, p.FreeText)
		}
	}

	for _, m := range modifierTable {
		if value := p.Filters[m.Key]; value != "" {
			parts = append(parts, m.Token+value)
		}
	}

	return strings.Join(parts, " ")
}

// ParseToJSON parses a search string and returns the result as JSON.
func ParseToJSON(input string) ([]byte, error) {
	return json.Marshal(Parse(input))
}
