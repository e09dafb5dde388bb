package catalog

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"tcg_catalog/query"
)

// folders pools accent-stripping transformers; a transformer is stateful
// and cannot be shared between goroutines.
var folders = sync.Pool{
	New: func() interface{} {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

// fold lowercases s and strips combining marks so that "pokemon" matches
// "Pokémon".
func fold(s string) string {
	if isASCII(s) {
		return strings.ToLower(s)
	}

	t := folders.Get().(transform.Transformer)
	defer folders.Put(t)

	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// foldedEntry holds the searchable fields of an index entry, folded.
type foldedEntry struct {
	name      string
	setID     string
	setName   string
	series    string
	types     []string
	supertype string
	rarity    string
}

func foldEntry(e *CardIndexEntry) foldedEntry {
	f := foldedEntry{
		name:      fold(e.Name),
		setID:     fold(e.SetID),
		setName:   fold(e.SetName),
		series:    fold(e.Series),
		supertype: fold(e.Supertype),
		rarity:    fold(e.Rarity),
		types:     make([]string, len(e.Types)),
	}
	for i, t := range e.Types {
		f.types[i] = fold(t)
	}
	return f
}

func foldIndex(index []CardIndexEntry) []foldedEntry {
	folded := make([]foldedEntry, len(index))
	for i := range index {
		folded[i] = foldEntry(&index[i])
	}
	return folded
}

// matcher is a ParsedSearch with its values folded once.
type matcher struct {
	text    string
	exact   bool
	filters map[query.FilterKey]string
}

func newMatcher(p query.ParsedSearch) *matcher {
	m := &matcher{
		text:    fold(strings.TrimSpace(p.FreeText)),
		exact:   p.ExactMatch,
		filters: make(map[query.FilterKey]string, len(p.Filters)),
	}
	for key, value := range p.Filters {
		if value != "" {
			m.filters[key] = fold(value)
		}
	}
	return m
}

// Search returns the index entries matching a parsed search, in index order.
// Free text matches name, set name, series or types as a substring; an exact
// match must equal the name. All comparisons ignore case and accents.
func Search(index []CardIndexEntry, p query.ParsedSearch) []CardIndexEntry {
	return search(index, foldIndex(index), p)
}

// Search runs a parsed search over the store's card index, using the
// fields folded when the index was loaded.
func (s *Store) Search(p query.ParsedSearch) ([]CardIndexEntry, error) {
	index, folded, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	return search(index, folded, p), nil
}

func search(index []CardIndexEntry, folded []foldedEntry, p query.ParsedSearch) []CardIndexEntry {
	m := newMatcher(p)
	results := []CardIndexEntry{}
	for i := range index {
		if m.match(&folded[i]) {
			results = append(results, index[i])
		}
	}
	return results
}

func (m *matcher) match(e *foldedEntry) bool {
	if m.text != "" && !m.matchText(e) {
		return false
	}

	for key, want := range m.filters {
		var ok bool
		switch key {
		case query.FilterType:
			ok = anyEqual(e.types, want)
		case query.FilterRarity:
			ok = strings.Contains(e.rarity, want)
		case query.FilterSeries:
			ok = strings.Contains(e.series, want)
		case query.FilterSupertype:
			ok = strings.HasPrefix(e.supertype, want)
		case query.FilterSet:
			ok = e.setID == want
		default:
			ok = true
		}
		if !ok {
			return false
		}
	}
	return true
}

func (m *matcher) matchText(e *foldedEntry) bool {
	if m.exact {
		return e.name == m.text
	}
	if strings.Contains(e.name, m.text) ||
		strings.Contains(e.setName, m.text) ||
		strings.Contains(e.series, m.text) {
		return true
	}
	for _, t := range e.types {
		if strings.Contains(t, m.text) {
			return true
		}
	}
	return false
}

func anyEqual(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
