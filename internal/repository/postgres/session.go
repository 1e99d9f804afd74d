package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"bustrack/internal/domain"
	"bustrack/internal/repository"
)

// SessionRepository is a PostgreSQL implementation of repository.SessionRepository.
//
// One row per (bus_id, activity_date); history is stored as an embedded JSONB
// sequence. A partial unique index on (bus_id, activity_date) WHERE is_active
// enforces at-most-one-active-session-per-bus-per-day at the storage layer.
type SessionRepository struct {
	q Querier
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{q: db}
}

const uniqueViolation = "23505"

const sessionColumns = `
	id, bus_id, driver_id, route_id, activity_date, is_active,
	transit_status, emergency, current_location, last_stop, next_stop,
	history, delay_minutes, connection_info, started_at, ended_at
`

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, session *domain.TrackingSession) error {
	query := `
		INSERT INTO tracking_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	cols, err := marshalSessionColumns(session)
	if err != nil {
		return err
	}

	var endedAt sql.NullTime
	if !session.EndedAt.IsZero() {
		endedAt = sql.NullTime{Time: session.EndedAt, Valid: true}
	}

	_, err = r.q.ExecContext(ctx, query,
		session.ID,
		session.BusID,
		session.DriverID,
		session.RouteID,
		string(session.ActivityDate),
		session.IsActive,
		string(session.TransitStatus),
		session.Emergency,
		cols.currentLocation,
		cols.lastStop,
		cols.nextStop,
		cols.history,
		session.DelayMinutes,
		cols.connectionInfo,
		session.StartedAt,
		endedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return err
	}

	return nil
}

// GetActive retrieves the active session for a bus on a given day.
// Returns nil if no active session exists.
func (r *SessionRepository) GetActive(ctx context.Context, busID string, day domain.ActivityDate) (*domain.TrackingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM tracking_sessions
		WHERE bus_id = $1 AND activity_date = $2 AND is_active
		LIMIT 1
	`

	session, err := scanSession(r.q.QueryRowContext(ctx, query, busID, string(day)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return session, nil
}

// Update replaces an existing session record.
func (r *SessionRepository) Update(ctx context.Context, session *domain.TrackingSession) error {
	query := `
		UPDATE tracking_sessions
		SET is_active = $1, transit_status = $2, emergency = $3,
		    current_location = $4, last_stop = $5, next_stop = $6,
		    history = $7, delay_minutes = $8, connection_info = $9,
		    ended_at = $10
		WHERE id = $11
	`

	cols, err := marshalSessionColumns(session)
	if err != nil {
		return err
	}

	var endedAt sql.NullTime
	if !session.EndedAt.IsZero() {
		endedAt = sql.NullTime{Time: session.EndedAt, Valid: true}
	}

	result, err := r.q.ExecContext(ctx, query,
		session.IsActive,
		string(session.TransitStatus),
		session.Emergency,
		cols.currentLocation,
		cols.lastStop,
		cols.nextStop,
		cols.history,
		session.DelayMinutes,
		cols.connectionInfo,
		endedAt,
		session.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListByBusAndDate retrieves all sessions for a bus on a given day.
func (r *SessionRepository) ListByBusAndDate(ctx context.Context, busID string, day domain.ActivityDate) ([]*domain.TrackingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM tracking_sessions
		WHERE bus_id = $1 AND activity_date = $2
		ORDER BY started_at
	`

	rows, err := r.q.QueryContext(ctx, query, busID, string(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.TrackingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// sessionJSON holds the marshaled JSONB columns of a session row.
type sessionJSON struct {
	currentLocation []byte
	lastStop        []byte
	nextStop        []byte
	history         []byte
	connectionInfo  []byte
}

func marshalSessionColumns(session *domain.TrackingSession) (*sessionJSON, error) {
	var cols sessionJSON
	var err error

	if session.CurrentLocation != nil {
		if cols.currentLocation, err = json.Marshal(session.CurrentLocation); err != nil {
			return nil, err
		}
	}
	if session.LastStop != nil {
		if cols.lastStop, err = json.Marshal(session.LastStop); err != nil {
			return nil, err
		}
	}
	if session.NextStop != nil {
		if cols.nextStop, err = json.Marshal(session.NextStop); err != nil {
			return nil, err
		}
	}

	history := session.History
	if history == nil {
		history = []domain.HistoryEntry{}
	}
	if cols.history, err = json.Marshal(history); err != nil {
		return nil, err
	}

	if cols.connectionInfo, err = json.Marshal(session.ConnectionInfo); err != nil {
		return nil, err
	}

	return &cols, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.TrackingSession, error) {
	var session domain.TrackingSession
	var activityDate, transitStatus string
	var currentLocation, lastStop, nextStop, history, connectionInfo []byte
	var endedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.BusID,
		&session.DriverID,
		&session.RouteID,
		&activityDate,
		&session.IsActive,
		&transitStatus,
		&session.Emergency,
		&currentLocation,
		&lastStop,
		&nextStop,
		&history,
		&session.DelayMinutes,
		&connectionInfo,
		&session.StartedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	session.ActivityDate = domain.ActivityDate(activityDate)
	session.TransitStatus = domain.SessionStatus(transitStatus)
	if endedAt.Valid {
		session.EndedAt = endedAt.Time
	}

	if len(currentLocation) > 0 {
		session.CurrentLocation = &domain.LocationFix{}
		if err := json.Unmarshal(currentLocation, session.CurrentLocation); err != nil {
			return nil, err
		}
	}
	if len(lastStop) > 0 {
		session.LastStop = &domain.LastStop{}
		if err := json.Unmarshal(lastStop, session.LastStop); err != nil {
			return nil, err
		}
	}
	if len(nextStop) > 0 {
		session.NextStop = &domain.NextStop{}
		if err := json.Unmarshal(nextStop, session.NextStop); err != nil {
			return nil, err
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &session.History); err != nil {
			return nil, err
		}
	}
	if len(connectionInfo) > 0 {
		if err := json.Unmarshal(connectionInfo, &session.ConnectionInfo); err != nil {
			return nil, err
		}
	}

	return &session, nil
}

// Ensure SessionRepository implements repository.SessionRepository.
var _ repository.SessionRepository = (*SessionRepository)(nil)
