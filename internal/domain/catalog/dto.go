package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

// HoursRequest sets one weekly or date-specific entry
type HoursRequest struct {
	OpenTime  string `json:"open_time" validate:"omitempty,hhmm"`
	CloseTime string `json:"close_time" validate:"omitempty,hhmm"`
	IsClosed  bool   `json:"is_closed"`
}

// UpdateServiceRequest replaces the bookable attributes of a service
type UpdateServiceRequest struct {
	Name            string          `json:"name" validate:"required,min=1,max=255"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,gt=0,lte=1440"`
	Capacity        int             `json:"capacity" validate:"omitempty,gte=1"`
	Price           decimal.Decimal `json:"price"`
}

// HoursResponse is the declared schedule of a business
type HoursResponse struct {
	Regular []schedule.RegularHours `json:"regular"`
	Special []schedule.SpecialHours `json:"special"`
}
