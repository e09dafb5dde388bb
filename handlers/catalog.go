package handlers

import (
	"net/http"
	"strings"

	"tcg_catalog/query"
)

// indexCacheControl lets browsers keep the card index for an hour.
const indexCacheControl = "public, max-age=3600"

// maxBatchIDs bounds POST /api/local/cards/batch.
const maxBatchIDs = 500

// SetsHandler handles GET /api/local/sets.
func (a *API) SetsHandler(w http.ResponseWriter, r *http.Request) {
	body, err := a.Catalog.SetsIndex()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeRaw(w, body)
}

// SetHandler handles GET /api/local/sets/{id}.
func (a *API) SetHandler(w http.ResponseWriter, r *http.Request) {
	body, err := a.Catalog.Set(r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeRaw(w, body)
}

// CardsHandler handles GET /api/local/cards. Without q it returns the whole
// card index; with q it returns the index entries matching the search.
func (a *API) CardsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		index, err := a.Catalog.Index()
		if err != nil {
			a.fail(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", indexCacheControl)
		writeJSON(w, http.StatusOK, index)
		return
	}

	results, err := a.Catalog.Search(query.Parse(q))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// CardHandler handles GET /api/local/cards/{id}.
func (a *API) CardHandler(w http.ResponseWriter, r *http.Request) {
	body, err := a.Catalog.Card(r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeRaw(w, body)
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

// CardsBatchHandler handles POST /api/local/cards/batch. Unknown ids are
// left out of the result.
func (a *API) CardsBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}
	if len(req.IDs) > maxBatchIDs {
		writeError(w, http.StatusBadRequest, "too many ids")
		return
	}

	cards, err := a.Catalog.CardsByID(r.Context(), req.IDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}
