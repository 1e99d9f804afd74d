package postgres

import (
	"context"
	"database/sql"
	"errors"

	"bustrack/internal/domain"
	"bustrack/internal/repository"
)

// RouteReader is a PostgreSQL implementation of repository.RouteReader.
// Routes and stops are reference data maintained by the administrative
// system; this reader never writes.
type RouteReader struct {
	q Querier
}

// NewRouteReader creates a new PostgreSQL route reader.
func NewRouteReader(db *sql.DB) *RouteReader {
	return &RouteReader{q: db}
}

// GetRoute retrieves a route with its stops ordered by sequence.
func (r *RouteReader) GetRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	query := `
		SELECT id, name, route_type, bus_id
		FROM routes WHERE id = $1
	`

	var route domain.Route
	var routeType string
	err := r.q.QueryRowContext(ctx, query, routeID).Scan(
		&route.ID,
		&route.Name,
		&routeType,
		&route.BusID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	route.Type = domain.RouteType(routeType)

	stopsQuery := `
		SELECT name, latitude, longitude, scheduled_at, kind, sequence
		FROM route_stops
		WHERE route_id = $1
		ORDER BY sequence
	`

	rows, err := r.q.QueryContext(ctx, stopsQuery, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var stop domain.RouteStop
		var scheduledAt sql.NullTime
		var kind string
		if err := rows.Scan(
			&stop.Name,
			&stop.Latitude,
			&stop.Longitude,
			&scheduledAt,
			&kind,
			&stop.Sequence,
		); err != nil {
			return nil, err
		}
		if scheduledAt.Valid {
			stop.ScheduledAt = scheduledAt.Time
		}
		stop.Kind = domain.StopKind(kind)
		route.Stops = append(route.Stops, stop)
	}

	return &route, rows.Err()
}

// RosterReader is a PostgreSQL implementation of repository.RosterReader.
type RosterReader struct {
	q Querier
}

// NewRosterReader creates a new PostgreSQL roster reader.
func NewRosterReader(db *sql.DB) *RosterReader {
	return &RosterReader{q: db}
}

// StudentsOnBus lists the children assigned to a bus.
func (r *RosterReader) StudentsOnBus(ctx context.Context, busID string) ([]domain.StudentAssignment, error) {
	query := `
		SELECT child_id, child_name, parent_id, bus_id
		FROM student_assignments
		WHERE bus_id = $1
	`

	return r.queryAssignments(ctx, query, busID)
}

// ChildrenOfParent lists the assignments for a parent's children.
func (r *RosterReader) ChildrenOfParent(ctx context.Context, parentID string) ([]domain.StudentAssignment, error) {
	query := `
		SELECT child_id, child_name, parent_id, bus_id
		FROM student_assignments
		WHERE parent_id = $1
	`

	return r.queryAssignments(ctx, query, parentID)
}

func (r *RosterReader) queryAssignments(ctx context.Context, query, arg string) ([]domain.StudentAssignment, error) {
	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []domain.StudentAssignment
	for rows.Next() {
		var a domain.StudentAssignment
		if err := rows.Scan(&a.ChildID, &a.ChildName, &a.ParentID, &a.BusID); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

// Ensure the readers implement their interfaces.
var (
	_ repository.RouteReader  = (*RouteReader)(nil)
	_ repository.RosterReader = (*RosterReader)(nil)
)
