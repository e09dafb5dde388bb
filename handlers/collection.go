package handlers

import "net/http"

// user returns the requesting user's id, answering 401 when there is none.
func (a *API) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	var userID string
	if a.User != nil {
		userID = a.User(r)
	}
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return userID, true
}

func (a *API) collectionsReady(w http.ResponseWriter) bool {
	if a.Collections == nil {
		writeError(w, http.StatusServiceUnavailable, "collection database not configured")
		return false
	}
	return true
}

// CollectionHandler handles GET /api/collection.
func (a *API) CollectionHandler(w http.ResponseWriter, r *http.Request) {
	if !a.collectionsReady(w) {
		return
	}
	userID, ok := a.user(w, r)
	if !ok {
		return
	}

	c, err := a.Collections.Load(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, c)
}

type cardState struct {
	CardID     string `json:"cardId"`
	Owned      *bool  `json:"owned,omitempty"`
	Wishlisted *bool  `json:"wishlisted,omitempty"`
	Quantity   *int   `json:"quantity,omitempty"`
}

// ToggleOwnedHandler handles POST /api/collection/owned/{id}.
func (a *API) ToggleOwnedHandler(w http.ResponseWriter, r *http.Request) {
	if !a.collectionsReady(w) {
		return
	}
	userID, ok := a.user(w, r)
	if !ok {
		return
	}

	cardID := r.PathValue("id")
	owned, err := a.Collections.ToggleOwned(r.Context(), userID, cardID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cardState{CardID: cardID, Owned: &owned})
}

// ToggleWishlistHandler handles POST /api/collection/wishlist/{id}.
func (a *API) ToggleWishlistHandler(w http.ResponseWriter, r *http.Request) {
	if !a.collectionsReady(w) {
		return
	}
	userID, ok := a.user(w, r)
	if !ok {
		return
	}

	cardID := r.PathValue("id")
	wishlisted, err := a.Collections.ToggleWishlist(r.Context(), userID, cardID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cardState{CardID: cardID, Wishlisted: &wishlisted})
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

// UpdateQuantityHandler handles PUT /api/collection/quantity/{id}. A
// quantity of zero removes the card.
func (a *API) UpdateQuantityHandler(w http.ResponseWriter, r *http.Request) {
	if !a.collectionsReady(w) {
		return
	}
	userID, ok := a.user(w, r)
	if !ok {
		return
	}

	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	quantity := *req.Quantity
	if quantity < 0 {
		quantity = 0
	}
	cardID := r.PathValue("id")
	if err := a.Collections.UpdateQuantity(r.Context(), userID, cardID, quantity); err != nil {
		a.fail(w, r, err)
		return
	}
	owned := quantity > 0
	writeJSON(w, http.StatusOK, cardState{CardID: cardID, Owned: &owned, Quantity: &quantity})
}
