package collection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"tcg_catalog/events"
)

var (
	// ErrNoUser is returned when an operation is attempted without a user id.
	ErrNoUser = errors.New("no user")
	// ErrNoCard is returned when an operation is attempted without a card id.
	ErrNoCard = errors.New("no card id")
)

// Store persists collections in user_collections and user_wishlists.
type Store struct {
	db    *sqlx.DB
	bus   events.Publisher
	log   zerolog.Logger
	newID func() string
}

// NewStore creates a Store. bus may be nil when nothing listens for changes.
func NewStore(db *sqlx.DB, bus events.Publisher, log zerolog.Logger) *Store {
	return &Store{
		db:    db,
		bus:   bus,
		log:   log.With().Str("component", "collection").Logger(),
		newID: uuid.NewString,
	}
}

// Migrate creates the collection tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate collection schema: %w", err)
		}
	}
	s.log.Debug().Str("driver", s.db.DriverName()).Msg("Collection schema ready")
	return nil
}

type ownedRow struct {
	CardID   string `db:"card_id"`
	Quantity int    `db:"quantity"`
}

// Load reads a user's collection.
func (s *Store) Load(ctx context.Context, userID string) (*Collection, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	var owned []ownedRow
	if err := s.db.SelectContext(ctx, &owned,
		s.db.Rebind(`SELECT card_id, quantity FROM user_collections WHERE user_id = ?`), userID); err != nil {
		return nil, fmt.Errorf("failed to load owned cards: %w", err)
	}

	var wishlist []string
	if err := s.db.SelectContext(ctx, &wishlist,
		s.db.Rebind(`SELECT card_id FROM user_wishlists WHERE user_id = ?`), userID); err != nil {
		return nil, fmt.Errorf("failed to load wishlist: %w", err)
	}

	c := NewCollection(userID)
	for _, row := range owned {
		c.setOwned(row.CardID, row.Quantity)
	}
	for _, id := range wishlist {
		c.setWishlisted(id)
	}
	return c, nil
}

// ToggleOwned adds the card with quantity 1 if it is not owned, or removes it
// if it is. It returns whether the card is owned afterwards.
func (s *Store) ToggleOwned(ctx context.Context, userID, cardID string) (bool, error) {
	owned, err := s.toggle(ctx, "user_collections", userID, cardID,
		`INSERT INTO user_collections (id, user_id, card_id, quantity) VALUES (?, ?, ?, 1)`)
	if err != nil {
		return false, fmt.Errorf("failed to toggle owned: %w", err)
	}

	event := events.NewCollectionChangedEvent(userID, cardID, events.ActionOwned)
	event.Owned = owned
	if owned {
		event.Quantity = 1
	}
	s.publish(event)
	return owned, nil
}

// ToggleWishlist adds or removes the card from the wishlist and returns
// whether it is wishlisted afterwards.
func (s *Store) ToggleWishlist(ctx context.Context, userID, cardID string) (bool, error) {
	wishlisted, err := s.toggle(ctx, "user_wishlists", userID, cardID,
		`INSERT INTO user_wishlists (id, user_id, card_id) VALUES (?, ?, ?)`)
	if err != nil {
		return false, fmt.Errorf("failed to toggle wishlist: %w", err)
	}

	event := events.NewCollectionChangedEvent(userID, cardID, events.ActionWishlist)
	event.Wishlisted = wishlisted
	s.publish(event)
	return wishlisted, nil
}

// UpdateQuantity sets the owned quantity of a card. A quantity of zero or
// less removes the card from the collection.
func (s *Store) UpdateQuantity(ctx context.Context, userID, cardID string, quantity int) error {
	if err := checkIDs(userID, cardID); err != nil {
		return err
	}

	var err error
	if quantity <= 0 {
		_, err = s.db.ExecContext(ctx,
			s.db.Rebind(`DELETE FROM user_collections WHERE user_id = ? AND card_id = ?`), userID, cardID)
		quantity = 0
	} else {
		_, err = s.db.ExecContext(ctx, s.db.Rebind(
			`INSERT INTO user_collections (id, user_id, card_id, quantity) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, card_id) DO UPDATE SET quantity = excluded.quantity`),
			s.newID(), userID, cardID, quantity)
	}
	if err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}

	event := events.NewCollectionChangedEvent(userID, cardID, events.ActionQuantity)
	event.Owned = quantity > 0
	event.Quantity = quantity
	s.publish(event)
	return nil
}

// toggle inserts the (user, card) row into table, or deletes it when the
// insert hits the unique key. It reports whether the row exists afterwards.
func (s *Store) toggle(ctx context.Context, table, userID, cardID, insert string) (bool, error) {
	if err := checkIDs(userID, cardID); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(insert+` ON CONFLICT (user_id, card_id) DO NOTHING`), s.newID(), userID, cardID)
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted > 0 {
		return true, nil
	}

	_, err = s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM `+table+` WHERE user_id = ? AND card_id = ?`), userID, cardID)
	if err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) publish(event *events.CollectionChangedEvent) {
	s.log.Debug().
		Str("user", event.UserID).
		Str("card", event.CardID).
		Str("action", string(event.Action)).
		Msg("Collection changed")
	if s.bus != nil {
		s.bus.Publish(event)
	}
}

func checkIDs(userID, cardID string) error {
	if userID == "" {
		return ErrNoUser
	}
	if cardID == "" {
		return ErrNoCard
	}
	return nil
}
