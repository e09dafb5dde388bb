package catalog

// SetImages holds the artwork URLs of a set.
type SetImages struct {
	Symbol string `json:"symbol"`
	Logo   string `json:"logo"`
}

// SetDetail is the content of sets/<id>.json.
type SetDetail struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Series       string            `json:"series"`
	PrintedTotal int               `json:"printedTotal"`
	Total        int               `json:"total"`
	Legalities   map[string]string `json:"legalities,omitempty"`
	PtcgoCode    string            `json:"ptcgoCode,omitempty"`
	ReleaseDate  string            `json:"releaseDate"`
	UpdatedAt    string            `json:"updatedAt"`
	Images       SetImages         `json:"images"`
	Cards        []string          `json:"cards,omitempty"`
}

// SetSummary is one entry of sets.json.
type SetSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ReleaseDate string   `json:"releaseDate"`
	Logo        string   `json:"logo"`
	Search      []string `json:"search"`
}

// SetsIndex is the content of sets.json.
type SetsIndex struct {
	Sets []SetSummary `json:"sets"`
}

// CardImages holds the image URLs of a card.
type CardImages struct {
	Small string `json:"small"`
	Large string `json:"large"`
}

// CardSet is the set reference embedded in a card record.
type CardSet struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Series string `json:"series"`
}

// Card holds the card fields the server and data tools look at. Card files
// carry many more fields; those are served verbatim from the raw JSON.
type Card struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Supertype string     `json:"supertype"`
	Subtypes  []string   `json:"subtypes,omitempty"`
	Types     []string   `json:"types,omitempty"`
	Number    string     `json:"number"`
	Rarity    string     `json:"rarity,omitempty"`
	Set       *CardSet   `json:"set,omitempty"`
	Images    CardImages `json:"images"`
}

// CardIndexEntry is one compact entry of cards-index.json. Short keys keep
// the index small enough to ship to the browser.
type CardIndexEntry struct {
	ID        string   `json:"i"`
	Name      string   `json:"n"`
	SetID     string   `json:"si"`
	SetName   string   `json:"sn"`
	Series    string   `json:"sr"`
	Types     []string `json:"t"`
	Supertype string   `json:"st"`
	Subtypes  []string `json:"sb"`
	Rarity    string   `json:"r"`
	Number    string   `json:"nr"`
}

// IndexEntry builds the compact index entry for a card.
func (c *Card) IndexEntry() CardIndexEntry {
	entry := CardIndexEntry{
		ID:        c.ID,
		Name:      c.Name,
		Types:     c.Types,
		Supertype: c.Supertype,
		Subtypes:  c.Subtypes,
		Rarity:    c.Rarity,
		Number:    c.Number,
	}
	if entry.Types == nil {
		entry.Types = []string{}
	}
	if entry.Subtypes == nil {
		entry.Subtypes = []string{}
	}
	if c.Set != nil {
		entry.SetID = c.Set.ID
		entry.SetName = c.Set.Name
		entry.Series = c.Set.Series
	}
	return entry
}
