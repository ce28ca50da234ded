package service

import "errors"

var (
	// ErrUserNotFound is returned when an eligibility check references an
	// unknown user.
	ErrUserNotFound = errors.New("user not found")

	// ErrBookingNotFound is returned when an operation references an
	// unknown booking.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrBookingNotEnded is returned when completion or a no-show report
	// arrives before the booking's slot has finished.
	ErrBookingNotEnded = errors.New("booking slot has not ended yet")

	// ErrBookingNotCompletable is returned when completion is attempted
	// inside the post-slot grace window.
	ErrBookingNotCompletable = errors.New("booking is still inside the completion grace window")

	// ErrInvalidBookingState is returned when a booking is in a status the
	// requested transition does not accept.
	ErrInvalidBookingState = errors.New("booking status does not allow this operation")

	// ErrFacilityNotFound is returned when pricing or availability
	// references an unknown facility.
	ErrFacilityNotFound = errors.New("facility not found")

	// ErrNegativeBasePrice is returned for quote requests with a negative
	// base price.
	ErrNegativeBasePrice = errors.New("base price must not be negative")
)
