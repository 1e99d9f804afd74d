package tests

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bustrack/internal/broadcast"
	"bustrack/internal/domain"
	"bustrack/internal/service"
)

// ──────────────────────────────────────────────
// 3. EMERGENCY OVERLAY
// ──────────────────────────────────────────────

func TestReportEmergency_FlagsSessionAndAlertsParents(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	f.roster.AddAssignment(domain.StudentAssignment{ChildID: "C1", ChildName: "Ana", ParentID: "P1", BusID: "B1"})
	f.roster.AddAssignment(domain.StudentAssignment{ChildID: "C2", ChildName: "Ben", ParentID: "P2", BusID: "B1"})

	if _, err := f.engine.StartTracking(ctx, startRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session, err := f.engine.ReportEmergency(ctx, service.ReportEmergencyRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Details:      "flat tire on Route 9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if session.Status() != domain.StatusEmergency {
		t.Errorf("expected status %s, got %s", domain.StatusEmergency, session.Status())
	}
	if !session.IsActive {
		t.Error("expected session to stay active during an emergency")
	}
	last := session.History[len(session.History)-1]
	if !strings.HasPrefix(last.Event, "EMERGENCY: ") {
		t.Errorf("expected EMERGENCY history entry, got %q", last.Event)
	}

	raised := f.publisher.EventsOfType(domain.EventEmergencyRaised)
	if len(raised) != 1 {
		t.Fatalf("expected 1 emergency-raised event, got %d", len(raised))
	}
	topics := map[broadcast.Topic]bool{}
	for _, topic := range raised[0].Topics {
		topics[topic] = true
	}
	for _, want := range []broadcast.Topic{"bus:B1", "admins", "parent:P1", "parent:P2"} {
		if !topics[want] {
			t.Errorf("expected emergency fanout to include topic %s, got %v", want, raised[0].Topics)
		}
	}
}

func TestReportEmergency_RequiresDetails(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	if _, err := f.engine.StartTracking(ctx, startRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.engine.ReportEmergency(ctx, service.ReportEmergencyRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
	})
	if !errors.Is(err, service.ErrEmergencyDetailsRequired) {
		t.Errorf("expected ErrEmergencyDetailsRequired, got %v", err)
	}
}

func TestEmergency_UpdatesContinueUnderneath(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	if _, err := f.engine.StartTracking(ctx, startRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.engine.ReportEmergency(ctx, service.ReportEmergencyRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Details:      "engine warning light",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Location updates keep landing while the flag is set, and the visible
	// status stays emergency.
	session, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.006, Longitude: -74.0, Speed: 15},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Status() != domain.StatusEmergency {
		t.Errorf("expected status to stay %s, got %s", domain.StatusEmergency, session.Status())
	}
	if session.CurrentLocation.Latitude != 40.006 {
		t.Error("expected location update to land during emergency")
	}

	// Ending the session is the only way off the overlay.
	ended, err := f.engine.EndTracking(ctx, service.EndTrackingRequest{BusID: "B1", DriverID: "D1", ActivityDate: testDay})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ended.Status() != domain.StatusCompleted {
		t.Errorf("expected status %s after end, got %s", domain.StatusCompleted, ended.Status())
	}
}

// ──────────────────────────────────────────────
// 4. EVENT FANOUT
// ──────────────────────────────────────────────

func TestLocationUpdate_PublishesToBusTopicOnly(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	if _, err := f.engine.StartTracking(ctx, startRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.004, Longitude: -74.0, Speed: 22},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updates := f.publisher.EventsOfType(domain.EventLocationUpdated)
	if len(updates) != 1 {
		t.Fatalf("expected 1 location-updated event, got %d", len(updates))
	}
	if len(updates[0].Topics) != 1 || updates[0].Topics[0] != "bus:B1" {
		t.Errorf("expected fanout to bus:B1 only, got %v", updates[0].Topics)
	}
}

func TestPickup_PublishesStudentEventToFamilyTopics(t *testing.T) {
	t.Parallel()

	f := newEngineFixture()
	ctx := context.Background()

	f.roster.AddAssignment(domain.StudentAssignment{ChildID: "C1", ChildName: "Ana", ParentID: "P1", BusID: "B1"})

	if _, err := f.engine.StartTracking(ctx, startRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.engine.UpdateLocation(ctx, service.UpdateLocationRequest{
		BusID:        "B1",
		DriverID:     "D1",
		ActivityDate: testDay,
		Location:     service.LocationInput{Latitude: 40.01, Longitude: -74.0, Speed: 0},
		Event: &service.EventDetails{
			Type:     service.TripEventPickup,
			Location: "Maple St",
			ChildID:  "C1",
		},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pickups := f.publisher.EventsOfType(domain.EventStudentPickup)
	if len(pickups) != 1 {
		t.Fatalf("expected 1 student-pickup event, got %d", len(pickups))
	}

	got := map[broadcast.Topic]bool{}
	for _, topic := range pickups[0].Topics {
		got[topic] = true
	}
	for _, want := range []broadcast.Topic{"bus:B1", "child:C1", "parent:P1"} {
		if !got[want] {
			t.Errorf("expected pickup fanout to include %s, got %v", want, pickups[0].Topics)
		}
	}

	payload, ok := pickups[0].Envelope.Payload.(domain.StudentStopPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", pickups[0].Envelope.Payload)
	}
	if payload.ChildName != "Ana" || payload.Kind != domain.StopKindPickup {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestPickup_UnknownChild_SkipsStudentEvent(t *testing.T) {
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
		Location:     service.LocationInput{Latitude: 40.01, Longitude: -74.0, Speed: 0},
		Event: &service.EventDetails{
			Type:     service.TripEventPickup,
			Location: "Maple St",
			ChildID:  "stranger",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The update itself still lands; only the per-child fanout is dropped.
	if len(session.History) != 2 {
		t.Errorf("expected the pickup to be recorded, got %d history entries", len(session.History))
	}
	if got := f.publisher.EventsOfType(domain.EventStudentPickup); len(got) != 0 {
		t.Errorf("expected no student-pickup event for unknown child, got %d", len(got))
	}
	if got := f.publisher.EventsOfType(domain.EventLocationUpdated); len(got) != 1 {
		t.Errorf("expected the location-updated event regardless, got %d", len(got))
	}
}
