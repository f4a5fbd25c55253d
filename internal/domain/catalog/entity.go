package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Business is the owner-managed storefront bookings are placed against.
type Business struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OwnerID   uuid.UUID `db:"owner_id" json:"owner_id"`
	Name      string    `db:"name" json:"name"`
	Locale    string    `db:"locale" json:"locale"`
	Currency  string    `db:"currency" json:"currency"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsOwnedBy reports whether userID manages the business.
func (b *Business) IsOwnedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && b.OwnerID == userID
}

// Service is a bookable offering. Duration and capacity are read when slots
// are generated; bookings already placed keep their own end time and total.
type Service struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	BusinessID      uuid.UUID       `db:"business_id" json:"business_id"`
	Name            string          `db:"name" json:"name"`
	DurationMinutes int             `db:"duration_minutes" json:"duration_minutes"`
	Capacity        int             `db:"capacity" json:"capacity"`
	Price           decimal.Decimal `db:"price" json:"price"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// EffectiveCapacity treats an unset capacity as the default of one.
func (s *Service) EffectiveCapacity() int {
	if s.Capacity < 1 {
		return 1
	}
	return s.Capacity
}
