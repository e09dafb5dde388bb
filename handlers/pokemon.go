package handlers

import (
	"net/http"
	"strconv"

	"tcg_catalog/query"
	"tcg_catalog/tcgapi"
)

// PokemonCardsHandler handles GET /api/pokemon/cards, a passthrough to the
// upstream card search. q is forwarded as is; search is parsed with the
// local grammar and translated when q is absent.
func (a *API) PokemonCardsHandler(w http.ResponseWriter, r *http.Request) {
	if a.Upstream == nil {
		writeError(w, http.StatusServiceUnavailable, "upstream API not configured")
		return
	}

	values := r.URL.Query()
	params := tcgapi.SearchParams{
		Q:       values.Get("q"),
		OrderBy: values.Get("orderBy"),
		Select:  values.Get("select"),
	}
	if params.Q == "" && values.Get("search") != "" {
		params.Q = tcgapi.TranslateQuery(query.Parse(values.Get("search")))
	}

	var ok bool
	if params.Page, ok = intParam(w, values.Get("page"), "page"); !ok {
		return
	}
	if params.PageSize, ok = intParam(w, values.Get("pageSize"), "pageSize"); !ok {
		return
	}

	body, err := a.Upstream.SearchCards(r.Context(), params)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeRaw(w, body)
}

// PokemonCardHandler handles GET /api/pokemon/cards/{id}.
func (a *API) PokemonCardHandler(w http.ResponseWriter, r *http.Request) {
	if a.Upstream == nil {
		writeError(w, http.StatusServiceUnavailable, "upstream API not configured")
		return
	}

	body, err := a.Upstream.Card(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeRaw(w, body)
}

// intParam parses an optional positive integer query parameter.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}
