package repository

import (
	"context"

	"bustrack/internal/domain"
)

// SessionRepository defines the persistence operations for tracking sessions.
// Sessions are keyed by (bus ID, activity date) and never deleted; a new
// calendar day creates a new session for the same bus.
type SessionRepository interface {
	// Create persists a new session. Returns ErrConflict if an active
	// session already exists for the same bus and activity date.
	Create(ctx context.Context, session *domain.TrackingSession) error

	// GetActive retrieves the active session for a bus on a given day.
	// Returns nil if no active session exists.
	GetActive(ctx context.Context, busID string, day domain.ActivityDate) (*domain.TrackingSession, error)

	// Update replaces an existing session record.
	Update(ctx context.Context, session *domain.TrackingSession) error

	// ListByBusAndDate retrieves all sessions for a bus on a given day,
	// active or completed, ordered by start time.
	ListByBusAndDate(ctx context.Context, busID string, day domain.ActivityDate) ([]*domain.TrackingSession, error)
}
