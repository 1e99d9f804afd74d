package service

import (
	"context"
	"testing"
	"time"

	"bustrack/internal/domain"
	"bustrack/internal/tests"
)

func TestSessionLocks_BoundedByFleetSize(t *testing.T) {
	t.Parallel()

	sessions := tests.NewMockSessionRepository()
	routes := tests.NewMockRouteReader()
	routes.AddRoute(&domain.Route{
		ID:    "R1",
		Type:  domain.RouteTypeMorning,
		BusID: "B1",
		Stops: []domain.RouteStop{
			{Name: "Maple St", Latitude: 40.01, Longitude: -74.0, Sequence: 1},
		},
	})

	clock := time.Date(2026, 3, 16, 7, 30, 0, 0, time.UTC)
	svc := NewTrackingService(sessions, routes, tests.NewMockRosterReader(), tests.NewRecordingPublisher(), nil, nil, nil).
		WithClock(func() time.Time { return clock })

	ctx := context.Background()

	// One bus operated over many days must not accrete one lock per day.
	for day := 0; day < 30; day++ {
		date := domain.DateOf(clock.AddDate(0, 0, day))
		if _, err := svc.StartTracking(ctx, StartTrackingRequest{
			BusID:        "B1",
			RouteID:      "R1",
			DriverID:     "D1",
			ActivityDate: date,
		}); err != nil {
			t.Fatalf("day %d start: %v", day, err)
		}
		if _, err := svc.EndTracking(ctx, EndTrackingRequest{
			BusID:        "B1",
			DriverID:     "D1",
			ActivityDate: date,
		}); err != nil {
			t.Fatalf("day %d end: %v", day, err)
		}
	}

	svc.mu.Lock()
	lockCount := len(svc.locks)
	svc.mu.Unlock()
	if lockCount != 1 {
		t.Errorf("expected 1 lock entry for 1 bus, got %d", lockCount)
	}
}
