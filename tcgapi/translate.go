package tcgapi

import (
	"strings"

	"tcg_catalog/query"
)

// upstreamFields maps filter keys onto the upstream search fields, in the
// order they are emitted.
var upstreamFields = []struct {
	key   query.FilterKey
	field string
}{
	{query.FilterType, "types"},
	{query.FilterRarity, "rarity"},
	{query.FilterSeries, "set.series"},
	{query.FilterSupertype, "supertype"},
	{query.FilterSet, "set.id"},
}

// TranslateQuery renders a parsed search in the upstream query grammar.
// Free text becomes a name prefix search, or an exact name when quoted:
//
//	pikachu type:lightning  ->  name:pikachu* types:lightning
//	"Pikachu V" set:swsh4   ->  name:"Pikachu V" set.id:swsh4
func TranslateQuery(p query.ParsedSearch) string {
	var terms []string

	if text := strings.TrimSpace(p.FreeText); text != "" {
		text = strings.ReplaceAll(text, `"`, "")
		switch {
		case p.ExactMatch:
			terms = append(terms, `name:"`+text+`"`)
		case strings.ContainsAny(text, " \t"):
			terms = append(terms, `name:"`+text+`*"`)
		default:
			terms = append(terms, "name:"+text+"*")
		}
	}

	for _, f := range upstreamFields {
		if value := p.Filters[f.key]; value != "" {
			terms = append(terms, f.field+":"+value)
		}
	}

	return strings.Join(terms, " ")
}

// SetQuery returns the upstream query selecting every card of a set.
func SetQuery(setID string) string {
	return "set.id:" + setID
}
