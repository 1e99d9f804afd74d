package service

import "errors"

var (
	// ErrSessionAlreadyActive is returned when starting a session for a bus
	// that already has an active session today.
	ErrSessionAlreadyActive = errors.New("bus already has an active session today")

	// ErrSessionNotFound is returned when an operation targets a bus with no
	// active session for the given day.
	ErrSessionNotFound = errors.New("no active session for bus")

	// ErrRouteNotFound is returned when the referenced route does not exist.
	ErrRouteNotFound = errors.New("route not found")

	// ErrStopNotFound is returned when a named stop is not on the route.
	ErrStopNotFound = errors.New("stop not on route")

	// ErrNotSessionDriver is returned when the acting driver does not own the
	// targeted session.
	ErrNotSessionDriver = errors.New("session belongs to another driver")

	// ErrInvalidBusID is returned when the bus ID is empty.
	ErrInvalidBusID = errors.New("invalid bus id")

	// ErrInvalidDriverID is returned when the driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidRouteID is returned when the route ID is empty.
	ErrInvalidRouteID = errors.New("invalid route id")

	// ErrInvalidLocation is returned when location coordinates are malformed.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidEventType is returned when event details carry an unknown type.
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrInvalidStatusChange is returned when a trip event would move the
	// session outside the legal state machine.
	ErrInvalidStatusChange = errors.New("status change not allowed from current status")

	// ErrEmergencyDetailsRequired is returned when an emergency report has no
	// description.
	ErrEmergencyDetailsRequired = errors.New("emergency details required")
)
