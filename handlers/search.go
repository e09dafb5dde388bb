package handlers

import (
	"io/fs"
	"net/http"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"tcg_catalog/query"
	"tcg_catalog/tcgapi"
)

// SearchDocFile is the markdown page describing the search syntax.
const SearchDocFile = "search-query-language.md"

type parseResponse struct {
	query.ParsedSearch
	Canonical string `json:"canonical"`
	Upstream  string `json:"upstream"`
}

// SearchParseHandler handles GET /api/search/parse?q=.
func (a *API) SearchParseHandler(w http.ResponseWriter, r *http.Request) {
	parsed := query.Parse(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, parseResponse{
		ParsedSearch: parsed,
		Canonical:    query.Build(parsed),
		Upstream:     tcgapi.TranslateQuery(parsed),
	})
}

type buildResponse struct {
	Query string `json:"query"`
}

// SearchBuildHandler handles POST /api/search/build. The body is a parsed
// search; the response holds its canonical search string.
func (a *API) SearchBuildHandler(w http.ResponseWriter, r *http.Request) {
	var parsed query.ParsedSearch
	if !decodeJSON(w, r, &parsed) {
		return
	}
	writeJSON(w, http.StatusOK, buildResponse{Query: query.Build(parsed)})
}

// SearchModifiersHandler handles GET /api/search/modifiers.
func (a *API) SearchModifiersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, query.Modifiers())
}

// SearchDocsHandler handles GET /api/docs/search, rendering the search
// syntax documentation as HTML.
func (a *API) SearchDocsHandler(w http.ResponseWriter, r *http.Request) {
	if a.Docs == nil {
		http.Error(w, "Documentation not found", http.StatusNotFound)
		return
	}
	mdContent, err := fs.ReadFile(a.Docs, SearchDocFile)
	if err != nil {
		http.Error(w, "Documentation not found", http.StatusNotFound)
		return
	}

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	doc := parser.NewWithExtensions(extensions).Parse(mdContent)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(markdown.Render(doc, renderer))
}
