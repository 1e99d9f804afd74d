package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"bustrack/internal/domain"
	"bustrack/internal/geo"
	"bustrack/internal/service"
)

// ──────────────────────────────────────────────
// 2. LOCATION UPDATES AND TRIP EVENTS
// ──────────────────────────────────────────────

func TestUpdateLocation_RecomputesNextStopEstimates(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	started, err := f.engine.StartTracking(ctx, startRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	initialDistance := started.NextStop.DistanceMeters

	session, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.005, Longitude: -74.0, Speed: 25, Heading: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if session.CurrentLocation == nil {
		t.Fatal("expected current location to be set")
	}
	if !session.CurrentLocation.Timestamp.Equal(fixedNow) {
		t.Error("expected the fix to carry the server timestamp")
	}

	next := session.NextStop
	if next.DistanceMeters >= initialDistance {
		t.Errorf("expected distance to shrink toward the stop: %.1f -> %.1f", initialDistance, next.DistanceMeters)
	}

	// The stored distance must agree exactly with the distance function on
	// the stored fix; estimates never go stale relative to the fix.
	want := geo.Distance(session.CurrentLocation.Latitude, session.CurrentLocation.Longitude, next.Latitude, next.Longitude)
	if next.DistanceMeters != want {
		t.Errorf("expected distance %.3f, got %.3f", want, next.DistanceMeters)
	}
	if next.EstimatedArrival.Before(fixedNow) {
		t.Errorf("ETA %v is before now %v", next.EstimatedArrival, fixedNow)
	}
}

func TestUpdateLocation_PickupEvent_AppendsHistoryAndLastStop(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	started, err := f.engine.StartTracking(ctx, startRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	distanceBefore := started.NextStop.DistanceMeters

	session, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.009, Longitude: -74.0, Speed: 5},
		Event: &service.EventDetails{
			Type:     service.TripEventPickup,
			Location: "Maple St",
			ChildID:  "C9",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(session.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(session.History))
	}
	if session.History[0].Event != "Route started" {
		t.Errorf("expected first entry to stay 'Route started', got %q", session.History[0].Event)
	}
	if session.History[1].Event != "Student pickup" {
		t.Errorf("expected pickup entry, got %q", session.History[1].Event)
	}

	if session.LastStop == nil {
		t.Fatal("expected last stop to be recorded")
	}
	if session.LastStop.Name != "Maple St" || session.LastStop.Kind != domain.StopKindPickup {
		t.Errorf("unexpected last stop: %+v", session.LastStop)
	}

	// A pickup does not advance the next-stop anchor by itself.
	if session.NextStop.Name != "Maple St" {
		t.Errorf("expected next stop to stay Maple St, got %s", session.NextStop.Name)
	}
	if session.NextStop.DistanceMeters >= distanceBefore {
		t.Errorf("expected distance to shrink: %.1f -> %.1f", distanceBefore, session.NextStop.DistanceMeters)
	}
	if session.Status() != domain.StatusEnRouteToSchool {
		t.Errorf("expected status %s, got %s", domain.StatusEnRouteToSchool, session.Status())
	}
}

func TestUpdateLocation_ReanchorsNextStopByName(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	if _, err := f.engine.StartTracking(ctx, startRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.01, Longitude: -74.0, Speed: 10},
		Event: &service.EventDetails{
			Type:     service.TripEventPickup,
			Location: "Maple St",
			NextStop: "Oak Ave",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if session.NextStop.Name != "Oak Ave" {
		t.Errorf("expected next stop Oak Ave, got %s", session.NextStop.Name)
	}
	want := geo.Distance(40.01, -74.0, 40.02, -74.0)
	if session.NextStop.DistanceMeters != want {
		t.Errorf("expected distance %.3f to the new anchor, got %.3f", want, session.NextStop.DistanceMeters)
	}
}

func TestUpdateLocation_UnknownNextStop_NoPartialWrite(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	if _, err := f.engine.StartTracking(ctx, startRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.005, Longitude: -74.0, Speed: 20},
		Event: &service.EventDetails{
			Type:     service.TripEventPickup,
			Location: "Maple St",
			NextStop: "Elm Ct",
		},
	})
	if !errors.Is(err, service.ErrStopNotFound) {
		t.Fatalf("expected ErrStopNotFound, got %v", err)
	}

	// The rejected update must leave no trace.
	stored := f.sessions.GetSession("B1", testDay)
	if len(stored.History) != 1 {
		t.Errorf("expected history unchanged at 1 entry, got %d", len(stored.History))
	}
	if stored.LastStop != nil {
		t.Error("expected no last stop after rejected update")
	}
	if stored.CurrentLocation.Latitude != 40.0 {
		t.Error("expected current location unchanged after rejected update")
	}
}

func TestUpdateLocation_InvalidInput_Fails(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	if _, err := f.engine.StartTracking(ctx, startRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 95.0, Longitude: -74.0},
	})
	if !errors.Is(err, service.ErrInvalidLocation) {
		t.Errorf("expected ErrInvalidLocation, got %v", err)
	}

	_, err = f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.0, Longitude: -74.0},
		Event:        &service.EventDetails{Type: "lunch_break"},
	})
	if !errors.Is(err, service.ErrInvalidEventType) {
		t.Errorf("expected ErrInvalidEventType, got %v", err)
	}
}

func TestSchoolEvents_AdvanceTransitStatus(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	if _, err := f.engine.StartTracking(ctx, startRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Departing school before arriving is not a legal move.
	_, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.05, Longitude: -74.0},
		Event:        &service.EventDetails{Type: service.TripEventSchoolDeparture},
	})
	if !errors.Is(err, service.ErrInvalidStatusChange) {
		t.Fatalf("expected ErrInvalidStatusChange, got %v", err)
	}

	session, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.05, Longitude: -74.0},
		Event:        &service.EventDetails{Type: service.TripEventSchoolArrival, Location: "Lincoln Elementary"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Status() != domain.StatusAtSchool {
		t.Errorf("expected status %s, got %s", domain.StatusAtSchool, session.Status())
	}

	session, err = f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.05, Longitude: -74.0},
		Event:        &service.EventDetails{Type: service.TripEventSchoolDeparture},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Status() != domain.StatusEnRouteToHome {
		t.Errorf("expected status %s, got %s", domain.StatusEnRouteToHome, session.Status())
	}
}

func TestUpdateLocation_DerivesDelayFromSchedule(t *testing.T) {
	t.Parallel()

	sessions := NewMockSessionRepository()
	routes := NewMockRouteReader()

	// A far first stop scheduled one minute out guarantees a late ETA.
	routes.AddRoute(&domain.Route{
		ID:    "R2",
		Type:  domain.RouteTypeMorning,
		BusID: "B2",
		Stops: []domain.RouteStop{
			{Name: "Far Stop", Latitude: 41.0, Longitude: -74.0, ScheduledAt: fixedNow.Add(time.Minute), Sequence: 1},
		},
	})

	engine := service.NewTrackingService(sessions, routes, NewMockRosterReader(), NewRecordingPublisher(), nil, nil, nil).
		WithClock(func() time.Time { return fixedNow })

	ctx := context.Background()
	session, err := engine.StartTracking(ctx, service.StartTrackingRequest{
		BusID:           "B2",
		RouteID:         "R2",
		DriverID:        "D1",
		ActivityDate:    testDay,
		InitialLocation: &service.LocationInput{Latitude: 40.0, Longitude: -74.0, Speed: 30},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if session.DelayMinutes <= 0 {
		t.Errorf("expected a positive delay against the schedule, got %d", session.DelayMinutes)
	}
}
