package repository

import (
	"context"

	"bustrack/internal/domain"
)

// RouteReader provides read-only access to route reference data
// (stops, coordinates, route direction) owned by an external system.
type RouteReader interface {
	// GetRoute retrieves a route with its stops ordered by sequence.
	GetRoute(ctx context.Context, routeID string) (*domain.Route, error)
}

// RosterReader provides read-only access to child/parent/bus assignments.
type RosterReader interface {
	// StudentsOnBus lists the children assigned to a bus.
	StudentsOnBus(ctx context.Context, busID string) ([]domain.StudentAssignment, error)

	// ChildrenOfParent lists the assignments for a parent's children.
	ChildrenOfParent(ctx context.Context, parentID string) ([]domain.StudentAssignment, error)
}
