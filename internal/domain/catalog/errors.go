package catalog

import "errors"

var (
	ErrBusinessNotFound = errors.New("business not found")
	ErrServiceNotFound  = errors.New("service not found")
	ErrNotOwner         = errors.New("only the business owner can do this")
	ErrInvalidHours     = errors.New("close_time must be after open_time")
	ErrInvalidService   = errors.New("invalid service definition")
)
