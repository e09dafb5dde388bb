// Package handlers provides the HTTP handlers of the catalog API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog"

	"tcg_catalog/catalog"
	"tcg_catalog/collection"
	"tcg_catalog/query"
	"tcg_catalog/tcgapi"
)

// maxBodyBytes limits JSON request bodies.
const maxBodyBytes = 1 << 20

// Catalog is the local card data the handlers serve.
type Catalog interface {
	SetsIndex() (json.RawMessage, error)
	Set(id string) (json.RawMessage, error)
	Card(id string) (json.RawMessage, error)
	CardsByID(ctx context.Context, ids []string) ([]json.RawMessage, error)
	Index() ([]catalog.CardIndexEntry, error)
	Search(p query.ParsedSearch) ([]catalog.CardIndexEntry, error)
}

// Upstream is the third-party card API.
type Upstream interface {
	SearchCards(ctx context.Context, params tcgapi.SearchParams) (json.RawMessage, error)
	Card(ctx context.Context, id string) (json.RawMessage, error)
}

// Collections stores per-user collections.
type Collections interface {
	Load(ctx context.Context, userID string) (*collection.Collection, error)
	ToggleOwned(ctx context.Context, userID, cardID string) (bool, error)
	ToggleWishlist(ctx context.Context, userID, cardID string) (bool, error)
	UpdateQuantity(ctx context.Context, userID, cardID string, quantity int) error
}

// UserFunc returns the id of the user making a request, or "".
type UserFunc func(r *http.Request) string

// API holds the dependencies of the handlers. Upstream and Collections may
// be nil; their routes then answer 503.
type API struct {
	Catalog     Catalog
	Upstream    Upstream
	Collections Collections
	Docs        fs.FS
	User        UserFunc
	Log         zerolog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeRaw writes an already-encoded JSON body.
func writeRaw(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// fail maps an error from the catalog, upstream or collection layers to a
// response.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var upstreamErr *tcgapi.UpstreamError
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, catalog.ErrInvalidID), errors.Is(err, collection.ErrNoCard):
		writeError(w, http.StatusBadRequest, "invalid id")
	case errors.Is(err, collection.ErrNoUser):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.As(err, &upstreamErr):
		status := http.StatusBadGateway
		if upstreamErr.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		a.Log.Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream request failed")
		writeError(w, status, "upstream request failed")
	case errors.Is(err, context.Canceled):
		// Client went away.
	default:
		a.Log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
