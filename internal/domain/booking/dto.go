package booking

// CreateBookingRequest is the caller's claim on a slot. End time and total are
// always computed server-side.
type CreateBookingRequest struct {
	BusinessID     string `json:"business_id" validate:"required,uuid"`
	ServiceID      string `json:"service_id" validate:"required,uuid"`
	Date           string `json:"date" validate:"required,isodate"`
	StartTime      string `json:"start_time" validate:"required,hhmm"`
	NumberOfPeople int    `json:"number_of_people" validate:"required,gte=1"`
	ContactName    string `json:"contact_name" validate:"required,min=2,max=255"`
	ContactEmail   string `json:"contact_email" validate:"required,email,max=255"`
	ContactPhone   string `json:"contact_phone,omitempty" validate:"omitempty,min=5,max=32"`
	Notes          string `json:"notes,omitempty" validate:"max=1000"`
}

// UpdateStatusRequest applies an action to a booking
type UpdateStatusRequest struct {
	Action                string `json:"action" validate:"required,booking_action"`
	AllowAlreadyCancelled bool   `json:"allow_already_cancelled,omitempty"`
}

// TransitionOptions tune a single transition
type TransitionOptions struct {
	// AllowAlreadyCancelled turns a cancel of a cancelled booking into a no-op
	AllowAlreadyCancelled bool
}
