// Package collection stores which cards each user owns and wants.
package collection

import (
	"encoding/json"
	"sort"
	"strings"
)

// Collection is one user's owned cards (with quantities) and wishlist.
type Collection struct {
	UserID   string
	owned    map[string]int
	wishlist map[string]struct{}
}

// NewCollection returns an empty collection for a user.
func NewCollection(userID string) *Collection {
	return &Collection{
		UserID:   userID,
		owned:    make(map[string]int),
		wishlist: make(map[string]struct{}),
	}
}

// IsOwned reports whether the card is in the collection.
func (c *Collection) IsOwned(cardID string) bool {
	_, ok := c.owned[cardID]
	return ok
}

// IsWishlisted reports whether the card is on the wishlist.
func (c *Collection) IsWishlisted(cardID string) bool {
	_, ok := c.wishlist[cardID]
	return ok
}

// Quantity returns how many copies of the card are owned, 0 if none.
func (c *Collection) Quantity(cardID string) int {
	return c.owned[cardID]
}

// OwnedCount returns the number of distinct owned cards.
func (c *Collection) OwnedCount() int { return len(c.owned) }

// WishlistCount returns the number of wishlisted cards.
func (c *Collection) WishlistCount() int { return len(c.wishlist) }

// OwnedForSet returns how many distinct cards of a set are owned. Card ids
// are "<set id>-<number>".
func (c *Collection) OwnedForSet(setID string) int {
	prefix := setID + "-"
	n := 0
	for id := range c.owned {
		if strings.HasPrefix(id, prefix) {
			n++
		}
	}
	return n
}

// OwnedIDs returns the owned card ids, sorted.
func (c *Collection) OwnedIDs() []string {
	ids := make([]string, 0, len(c.owned))
	for id := range c.owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WishlistIDs returns the wishlisted card ids, sorted.
func (c *Collection) WishlistIDs() []string {
	ids := make([]string, 0, len(c.wishlist))
	for id := range c.wishlist {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Collection) setOwned(cardID string, quantity int) {
	if quantity <= 0 {
		delete(c.owned, cardID)
		return
	}
	c.owned[cardID] = quantity
}

func (c *Collection) setWishlisted(cardID string) {
	c.wishlist[cardID] = struct{}{}
}

// MarshalJSON renders the collection for the browser client.
func (c *Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID        string         `json:"userId"`
		Owned         map[string]int `json:"owned"`
		Wishlist      []string       `json:"wishlist"`
		OwnedCount    int            `json:"ownedCount"`
		WishlistCount int            `json:"wishlistCount"`
	}{
		UserID:        c.UserID,
		Owned:         c.owned,
		Wishlist:      c.WishlistIDs(),
		OwnedCount:    c.OwnedCount(),
		WishlistCount: c.WishlistCount(),
	})
}
