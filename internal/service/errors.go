package service

import "errors"

var (
	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidDeliveryID is returned when delivery ID is empty.
	ErrInvalidDeliveryID = errors.New("invalid delivery id")

	// ErrInvalidTelemetry is returned when heading or battery level is out of range.
	ErrInvalidTelemetry = errors.New("invalid telemetry")

	// ErrInvalidLocationSource is returned for an unknown location source.
	ErrInvalidLocationSource = errors.New("invalid location source")

	// ErrInvalidDistance is returned when the search radius is not a positive finite number.
	ErrInvalidDistance = errors.New("max distance must be a positive number")

	// ErrInvalidLimit is returned when a result limit is not positive.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrInvalidTimeRange is returned when the start of a range is after its end.
	ErrInvalidTimeRange = errors.New("start date must not be after end date")

	// ErrInvalidDriverStatus is returned for an unknown driver status.
	ErrInvalidDriverStatus = errors.New("invalid driver status")

	// ErrInvalidDeliveryStatus is returned for an unknown delivery status.
	ErrInvalidDeliveryStatus = errors.New("invalid delivery status")

	// ErrInvalidDeliveryTransition is returned when a delivery cannot move to the requested status.
	ErrInvalidDeliveryTransition = errors.New("delivery cannot move to requested status")

	// ErrDeliveryNotAssignedToDriver is returned when a driver updates someone else's delivery.
	ErrDeliveryNotAssignedToDriver = errors.New("delivery not assigned to this driver")

	// ErrInvalidRouteMode is returned for an unknown travel mode.
	ErrInvalidRouteMode = errors.New("invalid route mode")

	// ErrInvalidCredentials is returned when email or password do not match.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidRegistration is returned when required signup fields are missing.
	ErrInvalidRegistration = errors.New("missing required registration fields")

	// ErrInvalidDelivery is returned when required delivery fields are missing.
	ErrInvalidDelivery = errors.New("missing required delivery fields")

	// ErrInvalidToken is returned for a malformed, expired or forged token.
	ErrInvalidToken = errors.New("invalid token")
)
