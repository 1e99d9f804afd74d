package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"bustrack/internal/broadcast"
	"bustrack/internal/domain"
	"bustrack/internal/geo"
	internalRedis "bustrack/internal/redis"
	"bustrack/internal/repository"
)

// sessionLockTTL bounds how long a crashed instance can hold the
// cross-instance session lock.
const sessionLockTTL = 10 * time.Second

// TrackingService owns the session state machine. Every mutation runs under
// a per-(bus, activity date) lock, commits to the repository first, and only
// then fans the resulting event out; broadcast failures never roll back a
// session mutation.
type TrackingService struct {
	sessions  repository.SessionRepository
	routes    repository.RouteReader
	roster    repository.RosterReader
	publisher broadcast.Publisher

	// Optional redis-backed collaborators; all best-effort.
	locationStore internalRedis.LocationStoreInterface
	lockStore     internalRedis.LockStoreInterface
	cacheStore    *internalRedis.CacheStore

	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTrackingService creates a new TrackingService. locationStore, lockStore
// and cacheStore may be nil.
func NewTrackingService(
	sessions repository.SessionRepository,
	routes repository.RouteReader,
	roster repository.RosterReader,
	publisher broadcast.Publisher,
	locationStore internalRedis.LocationStoreInterface,
	lockStore internalRedis.LockStoreInterface,
	cacheStore *internalRedis.CacheStore,
) *TrackingService {
	return &TrackingService{
		sessions:      sessions,
		routes:        routes,
		roster:        roster,
		publisher:     publisher,
		locationStore: locationStore,
		lockStore:     lockStore,
		cacheStore:    cacheStore,
		now:           time.Now,
		locks:         make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the service clock. For tests.
func (s *TrackingService) WithClock(now func() time.Time) *TrackingService {
	s.now = now
	return s
}

// sessionKey is the serialization key for one bus's day.
func sessionKey(busID string, day domain.ActivityDate) string {
	return busID + "|" + string(day)
}

// lockSession serializes operations on one bus's session. The in-process
// mutex is keyed by bus alone — a bus has at most one live session at a
// time, and keying by bus keeps the lock map bounded by fleet size instead
// of growing with every calendar day. The cross-instance redis lock stays
// scoped to the (bus, day) key. Operations on different buses proceed
// independently.
func (s *TrackingService) lockSession(ctx context.Context, busID, key string) func() {
	s.mu.Lock()
	lock, ok := s.locks[busID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[busID] = lock
	}
	s.mu.Unlock()

	lock.Lock()

	released := false
	if s.lockStore != nil {
		if ok, err := s.lockStore.AcquireSessionLock(ctx, key, sessionLockTTL); err == nil && ok {
			released = true
		}
	}

	return func() {
		if released {
			_ = s.lockStore.ReleaseSessionLock(ctx, key)
		}
		lock.Unlock()
	}
}

// LocationInput is a client-supplied GPS sample. The engine always assigns
// its own timestamp.
type LocationInput struct {
	Latitude  float64
	Longitude float64
	Speed     float64
	Heading   float64
}

// TripEventType classifies the optional event detail on a location update.
type TripEventType string

const (
	TripEventPickup          TripEventType = "pickup"
	TripEventDropoff         TripEventType = "dropoff"
	TripEventSchoolArrival   TripEventType = "school_arrival"
	TripEventSchoolDeparture TripEventType = "school_departure"
	TripEventNote            TripEventType = "note"
)

// EventDetails describes what happened at the moment of a location update.
type EventDetails struct {
	Type        TripEventType
	Location    string // stop name or free-form label
	Description string
	ChildID     string // identifies the child on pickup/dropoff, when known
	NextStop    string // re-anchors nextStop to this named route stop
}

// StartTrackingRequest contains the parameters for starting a session.
type StartTrackingRequest struct {
	BusID           string
	RouteID         string
	DriverID        string
	ActivityDate    domain.ActivityDate
	InitialLocation *LocationInput
}

// StartTracking creates the tracking session for a bus's day. The initial
// status comes from the route direction; the route's first stop seeds the
// next-stop anchor.
func (s *TrackingService) StartTracking(ctx context.Context, req StartTrackingRequest) (*domain.TrackingSession, error) {
	if req.BusID == "" {
		return nil, ErrInvalidBusID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if req.RouteID == "" {
		return nil, ErrInvalidRouteID
	}
	if req.InitialLocation != nil && !validCoordinates(req.InitialLocation.Latitude, req.InitialLocation.Longitude) {
		return nil, ErrInvalidLocation
	}

	unlock := s.lockSession(ctx, req.BusID, sessionKey(req.BusID, req.ActivityDate))
	defer unlock()

	existing, err := s.sessions.GetActive(ctx, req.BusID, req.ActivityDate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrSessionAlreadyActive
	}

	route, err := s.routes.GetRoute(ctx, req.RouteID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}

	now := s.now()

	status := domain.StatusEnRouteToHome
	if route.Type == domain.RouteTypeMorning {
		status = domain.StatusEnRouteToSchool
	}

	session := &domain.TrackingSession{
		ID:            uuid.New().String(),
		BusID:         req.BusID,
		DriverID:      req.DriverID,
		RouteID:       req.RouteID,
		ActivityDate:  req.ActivityDate,
		IsActive:      true,
		TransitStatus: status,
		StartedAt:     now,
	}

	if first := route.FirstStop(); first != nil {
		session.NextStop = &domain.NextStop{
			Name:        first.Name,
			Latitude:    first.Latitude,
			Longitude:   first.Longitude,
			ScheduledAt: first.ScheduledAt,
		}
	}

	entry := domain.HistoryEntry{Time: now, Event: "Route started", Speed: 0}
	if req.InitialLocation != nil {
		fix := fixFromInput(*req.InitialLocation, now)
		session.CurrentLocation = &fix
		entry.Latitude = fix.Latitude
		entry.Longitude = fix.Longitude
		s.refreshEstimates(session, now)
	}
	session.AppendHistory(entry)

	if err := s.sessions.Create(ctx, session); err != nil {
		if err == repository.ErrConflict {
			return nil, ErrSessionAlreadyActive
		}
		return nil, err
	}

	s.mirrorLocation(ctx, session)
	if s.cacheStore != nil {
		_ = s.cacheStore.AddTrackedBus(ctx, req.BusID)
	}

	s.publish(domain.Envelope{
		EventType: domain.EventSessionStarted,
		BusID:     session.BusID,
		Payload: domain.SessionStartedPayload{
			SessionID: session.ID,
			RouteID:   session.RouteID,
			Status:    session.Status(),
			NextStop:  session.NextStop,
			StartedAt: session.StartedAt,
		},
		ServerTime: now,
	}, broadcast.BusTopic(session.BusID))

	return session, nil
}

// UpdateLocationRequest contains the parameters for a location update.
type UpdateLocationRequest struct {
	BusID        string
	DriverID     string
	ActivityDate domain.ActivityDate
	Location     LocationInput
	Event        *EventDetails
}

// UpdateLocation records a new fix on the active session. The current
// location is always overwritten with a server timestamp; when a next stop
// is set, its distance and ETA are recomputed from the new fix so they never
// go stale.
func (s *TrackingService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) (*domain.TrackingSession, error) {
	if req.BusID == "" {
		return nil, ErrInvalidBusID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if !validCoordinates(req.Location.Latitude, req.Location.Longitude) {
		return nil, ErrInvalidLocation
	}
	if req.Event != nil {
		switch req.Event.Type {
		case TripEventPickup, TripEventDropoff, TripEventSchoolArrival, TripEventSchoolDeparture, TripEventNote:
		default:
			return nil, ErrInvalidEventType
		}
	}

	unlock := s.lockSession(ctx, req.BusID, sessionKey(req.BusID, req.ActivityDate))
	defer unlock()

	session, err := s.ownedActiveSession(ctx, req.BusID, req.DriverID, req.ActivityDate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fix := fixFromInput(req.Location, now)

	// Validate everything that can fail before mutating the session, so a
	// rejected update leaves no partial write.
	var reanchor *domain.RouteStop
	if req.Event != nil {
		if next := targetStatus(req.Event.Type); next != "" && !domain.CanTransition(session.TransitStatus, next) {
			return nil, ErrInvalidStatusChange
		}
		if req.Event.NextStop != "" {
			route, err := s.routes.GetRoute(ctx, session.RouteID)
			if err != nil {
				if err == repository.ErrNotFound {
					return nil, ErrRouteNotFound
				}
				return nil, err
			}
			if reanchor = route.StopByName(req.Event.NextStop); reanchor == nil {
				return nil, ErrStopNotFound
			}
		}
	}

	session.CurrentLocation = &fix

	if req.Event != nil {
		ev := req.Event

		session.AppendHistory(domain.HistoryEntry{
			Time:      now,
			Location:  ev.Location,
			Event:     historyText(ev),
			Speed:     fix.Speed,
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
		})

		switch ev.Type {
		case TripEventPickup:
			session.LastStop = &domain.LastStop{Name: ev.Location, Time: now, Kind: domain.StopKindPickup}
		case TripEventDropoff:
			session.LastStop = &domain.LastStop{Name: ev.Location, Time: now, Kind: domain.StopKindDropoff}
		case TripEventSchoolArrival:
			session.TransitStatus = domain.StatusAtSchool
		case TripEventSchoolDeparture:
			session.TransitStatus = domain.StatusEnRouteToHome
		}

		if reanchor != nil {
			session.NextStop = &domain.NextStop{
				Name:        reanchor.Name,
				Latitude:    reanchor.Latitude,
				Longitude:   reanchor.Longitude,
				ScheduledAt: reanchor.ScheduledAt,
			}
		}
	}

	s.refreshEstimates(session, now)

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	s.mirrorLocation(ctx, session)
	s.publishLocationEvents(ctx, session, fix, req.Event, now)

	return session, nil
}

// EndTrackingRequest contains the parameters for ending a session.
type EndTrackingRequest struct {
	BusID        string
	DriverID     string
	ActivityDate domain.ActivityDate
}

// EndTracking completes the session. The record stays queryable but accepts
// no further mutations; ending twice yields ErrSessionNotFound.
func (s *TrackingService) EndTracking(ctx context.Context, req EndTrackingRequest) (*domain.TrackingSession, error) {
	if req.BusID == "" {
		return nil, ErrInvalidBusID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	unlock := s.lockSession(ctx, req.BusID, sessionKey(req.BusID, req.ActivityDate))
	defer unlock()

	session, err := s.ownedActiveSession(ctx, req.BusID, req.DriverID, req.ActivityDate)
	if err != nil {
		return nil, err
	}

	now := s.now()

	session.IsActive = false
	session.TransitStatus = domain.StatusCompleted
	session.EndedAt = now
	session.AppendHistory(domain.HistoryEntry{Time: now, Event: "Route completed", Speed: 0})

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	if s.locationStore != nil {
		if err := s.locationStore.RemoveLocation(ctx, session.BusID); err != nil {
			log.Printf("tracking: remove bus %s from geo index: %v", session.BusID, err)
		}
	}
	if s.cacheStore != nil {
		_ = s.cacheStore.RemoveTrackedBus(ctx, session.BusID)
		_ = s.cacheStore.InvalidateRoster(ctx, session.BusID)
	}

	return session, nil
}

// ReportEmergencyRequest contains the parameters for raising an emergency.
type ReportEmergencyRequest struct {
	BusID        string
	DriverID     string
	ActivityDate domain.ActivityDate
	Details      string
	Location     *LocationInput
}

// ReportEmergency flags the session as in emergency and alerts the bus
// topic, the administrators and every parent with a child on the bus. The
// session stays active; emergency is an overlay, not a terminal state.
func (s *TrackingService) ReportEmergency(ctx context.Context, req ReportEmergencyRequest) (*domain.TrackingSession, error) {
	if req.BusID == "" {
		return nil, ErrInvalidBusID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if req.Details == "" {
		return nil, ErrEmergencyDetailsRequired
	}
	if req.Location != nil && !validCoordinates(req.Location.Latitude, req.Location.Longitude) {
		return nil, ErrInvalidLocation
	}

	unlock := s.lockSession(ctx, req.BusID, sessionKey(req.BusID, req.ActivityDate))
	defer unlock()

	session, err := s.ownedActiveSession(ctx, req.BusID, req.DriverID, req.ActivityDate)
	if err != nil {
		return nil, err
	}

	now := s.now()

	entry := domain.HistoryEntry{Time: now, Event: "EMERGENCY: " + req.Details}
	if req.Location != nil {
		fix := fixFromInput(*req.Location, now)
		session.CurrentLocation = &fix
		entry.Speed = fix.Speed
		entry.Latitude = fix.Latitude
		entry.Longitude = fix.Longitude
		s.refreshEstimates(session, now)
	} else if session.CurrentLocation != nil {
		entry.Latitude = session.CurrentLocation.Latitude
		entry.Longitude = session.CurrentLocation.Longitude
	}

	session.Emergency = true
	session.AppendHistory(entry)

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	s.mirrorLocation(ctx, session)

	topics := []broadcast.Topic{broadcast.BusTopic(session.BusID), broadcast.TopicAdmins}
	for _, a := range s.busRoster(ctx, session.BusID) {
		topics = append(topics, broadcast.ParentTopic(a.ParentID))
	}

	s.publish(domain.Envelope{
		EventType: domain.EventEmergencyRaised,
		BusID:     session.BusID,
		Payload: domain.EmergencyRaisedPayload{
			Details:  req.Details,
			Location: session.CurrentLocation,
			RaisedAt: now,
		},
		ServerTime: now,
	}, topics...)

	return session, nil
}

// UpdateConnectionInfoRequest contains the parameters for a diagnostics update.
type UpdateConnectionInfoRequest struct {
	BusID        string
	DriverID     string
	ActivityDate domain.ActivityDate
	Patch        domain.ConnectionInfo
}

// UpdateConnectionInfo merges device diagnostics into the session without
// touching trip status. No broadcast.
func (s *TrackingService) UpdateConnectionInfo(ctx context.Context, req UpdateConnectionInfoRequest) (*domain.ConnectionInfo, error) {
	if req.BusID == "" {
		return nil, ErrInvalidBusID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	unlock := s.lockSession(ctx, req.BusID, sessionKey(req.BusID, req.ActivityDate))
	defer unlock()

	session, err := s.ownedActiveSession(ctx, req.BusID, req.DriverID, req.ActivityDate)
	if err != nil {
		return nil, err
	}

	patch := req.Patch
	patch.UpdatedAt = s.now()
	session.ConnectionInfo.Merge(patch)

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	info := session.ConnectionInfo
	return &info, nil
}

// GetActiveSession returns the bus's active session for the given day.
func (s *TrackingService) GetActiveSession(ctx context.Context, busID string, day domain.ActivityDate) (*domain.TrackingSession, error) {
	if busID == "" {
		return nil, ErrInvalidBusID
	}

	session, err := s.sessions.GetActive(ctx, busID, day)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetSessionHistory returns all of the bus's sessions for a day, completed
// ones included. Read-only.
func (s *TrackingService) GetSessionHistory(ctx context.Context, busID string, day domain.ActivityDate) ([]*domain.TrackingSession, error) {
	if busID == "" {
		return nil, ErrInvalidBusID
	}

	return s.sessions.ListByBusAndDate(ctx, busID, day)
}

// ownedActiveSession loads the active session and checks driver ownership.
func (s *TrackingService) ownedActiveSession(ctx context.Context, busID, driverID string, day domain.ActivityDate) (*domain.TrackingSession, error) {
	session, err := s.sessions.GetActive(ctx, busID, day)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.DriverID != driverID {
		return nil, ErrNotSessionDriver
	}
	return session, nil
}

// refreshEstimates recomputes next-stop distance, ETA and delay from the
// current fix. Stale values are overwritten, never left mismatched.
func (s *TrackingService) refreshEstimates(session *domain.TrackingSession, now time.Time) {
	if session.NextStop == nil || session.CurrentLocation == nil {
		return
	}

	fix := session.CurrentLocation
	next := session.NextStop

	next.DistanceMeters = geo.Distance(fix.Latitude, fix.Longitude, next.Latitude, next.Longitude)
	next.EstimatedArrival = geo.EstimateArrival(now, next.DistanceMeters, fix.Speed)

	if !next.ScheduledAt.IsZero() {
		delay := int(next.EstimatedArrival.Sub(next.ScheduledAt).Round(time.Minute) / time.Minute)
		if delay < 0 {
			delay = 0
		}
		session.DelayMinutes = delay
	}
}

// publishLocationEvents emits the location-updated event to the bus topic
// and, for a pickup or dropoff of an identifiable child, the student event
// to the bus, child and parent topics.
func (s *TrackingService) publishLocationEvents(ctx context.Context, session *domain.TrackingSession, fix domain.LocationFix, ev *EventDetails, now time.Time) {
	s.publish(domain.Envelope{
		EventType: domain.EventLocationUpdated,
		BusID:     session.BusID,
		Payload: domain.LocationUpdatedPayload{
			Location:     fix,
			Status:       session.Status(),
			NextStop:     session.NextStop,
			DelayMinutes: session.DelayMinutes,
		},
		ServerTime: now,
	}, broadcast.BusTopic(session.BusID))

	if ev == nil || ev.ChildID == "" {
		return
	}

	var eventType domain.EventType
	var kind domain.StopKind
	switch ev.Type {
	case TripEventPickup:
		eventType, kind = domain.EventStudentPickup, domain.StopKindPickup
	case TripEventDropoff:
		eventType, kind = domain.EventStudentDropoff, domain.StopKindDropoff
	default:
		return
	}

	var assignment *domain.StudentAssignment
	for _, a := range s.busRoster(ctx, session.BusID) {
		if a.ChildID == ev.ChildID {
			assignment = &a
			break
		}
	}
	if assignment == nil {
		// Child not on this bus's roster; the bus topic already got the
		// location update.
		return
	}

	s.publish(domain.Envelope{
		EventType: eventType,
		BusID:     session.BusID,
		ChildID:   assignment.ChildID,
		ParentID:  assignment.ParentID,
		Payload: domain.StudentStopPayload{
			ChildID:   assignment.ChildID,
			ChildName: assignment.ChildName,
			StopName:  ev.Location,
			Kind:      kind,
			Location:  fix,
		},
		ServerTime: now,
	},
		broadcast.BusTopic(session.BusID),
		broadcast.ChildTopic(assignment.ChildID),
		broadcast.ParentTopic(assignment.ParentID),
	)
}

// busRoster loads the bus roster, via cache when available. Roster failures
// degrade fanout, never the session mutation.
func (s *TrackingService) busRoster(ctx context.Context, busID string) []domain.StudentAssignment {
	if s.cacheStore != nil {
		if roster, err := s.cacheStore.GetRoster(ctx, busID); err == nil && roster != nil {
			return roster
		}
	}

	roster, err := s.roster.StudentsOnBus(ctx, busID)
	if err != nil {
		log.Printf("tracking: load roster for bus %s: %v", busID, err)
		return nil
	}

	if s.cacheStore != nil {
		_ = s.cacheStore.SetRoster(ctx, busID, roster)
	}
	return roster
}

// mirrorLocation updates the live fleet geo index. Best effort.
func (s *TrackingService) mirrorLocation(ctx context.Context, session *domain.TrackingSession) {
	if s.locationStore == nil || session.CurrentLocation == nil {
		return
	}
	fix := session.CurrentLocation
	if err := s.locationStore.UpdateLocation(ctx, session.BusID, fix.Latitude, fix.Longitude); err != nil {
		log.Printf("tracking: mirror bus %s location: %v", session.BusID, err)
	}
}

func (s *TrackingService) publish(env domain.Envelope, topics ...broadcast.Topic) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(env, topics...)
}

// targetStatus maps a status-affecting trip event to its destination state.
func targetStatus(eventType TripEventType) domain.SessionStatus {
	switch eventType {
	case TripEventSchoolArrival:
		return domain.StatusAtSchool
	case TripEventSchoolDeparture:
		return domain.StatusEnRouteToHome
	default:
		return ""
	}
}

func historyText(ev *EventDetails) string {
	if ev.Description != "" {
		return ev.Description
	}
	switch ev.Type {
	case TripEventPickup:
		return "Student pickup"
	case TripEventDropoff:
		return "Student dropoff"
	case TripEventSchoolArrival:
		return "Arrived at school"
	case TripEventSchoolDeparture:
		return "Departed school"
	default:
		return "Trip note"
	}
}

func fixFromInput(in LocationInput, now time.Time) domain.LocationFix {
	return domain.LocationFix{
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Speed:     in.Speed,
		Heading:   in.Heading,
		Timestamp: now,
	}
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
