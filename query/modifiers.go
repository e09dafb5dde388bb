package query

import "strings"

// Modifier describes a search modifier for help text and autocompletion.
type Modifier struct {
	Token       string    `json:"key"`
	Key         FilterKey `json:"filter"`
	Description string    `json:"description"`
	Examples    []string  `json:"examples"`
}

// modifierTable is the fixed set of modifiers, in the order Build emits them.
// Tokens are disjoint prefixes, so a word is claimed by at most one entry.
var modifierTable = []Modifier{
	{Token: "type:", Key: FilterType, Description: "Filter by type", Examples: []string{"type:fire", "type:water", "type:lightning"}},
	{Token: "rarity:", Key: FilterRarity, Description: "Filter by rarity", Examples: []string{"rarity:rare", "rarity:common", "rarity:holo"}},
	{Token: "series:", Key: FilterSeries, Description: "Filter by series", Examples: []string{"series:base", "series:scarlet"}},
	{Token: "is:", Key: FilterSupertype, Description: "Filter by card type", Examples: []string{"is:pokemon", "is:trainer", "is:energy"}},
	{Token: "set:", Key: FilterSet, Description: "Filter by set ID", Examples: []string{"set:base1", "set:sv1"}},
}

// Modifiers returns the supported modifiers. The result is a copy.
func Modifiers() []Modifier {
	out := make([]Modifier, len(modifierTable))
	for i, m := range modifierTable {
		m.Examples = append([]string(nil), m.Examples...)
		out[i] = m
	}
	return out
}

// TokenFor returns the modifier token for a filter key.
func TokenFor(key FilterKey) (string, bool) {
	for _, m := range modifierTable {
		if m.Key == key {
			return m.Token, true
		}
	}
	return "", false
}

// matchModifier reports whether word starts with a modifier token
// (case-insensitive) followed by at least one character. A bare token such
// as "type:" is not a modifier.
func matchModifier(word string) (FilterKey, string, bool) {
	for _, m := range modifierTable {
		n := len(m.Token)
		if len(word) > n && strings.EqualFold(word[:n], m.Token) {
			return m.Key, word[n:], true
		}
	}
	return "", "", false
}
