package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bustrack/internal/broadcast"
	"bustrack/internal/domain"
	"bustrack/internal/redis"
	"bustrack/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK SESSION REPOSITORY
// ──────────────────────────────────────────────

// MockSessionRepository is a mock implementation of SessionRepository.
type MockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.TrackingSession // keyed by busID|date

	// Counters for verification
	CreateCallCount int32
	UpdateCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockSessionRepository creates a new mock session repository.
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		sessions: make(map[string]*domain.TrackingSession),
	}
}

func storageKey(busID string, day domain.ActivityDate) string {
	return busID + "|" + string(day)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.TrackingSession) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := storageKey(session.BusID, session.ActivityDate)
	if existing, ok := m.sessions[key]; ok && existing.IsActive {
		return repository.ErrConflict
	}
	m.sessions[key] = session.Clone()
	return nil
}

func (m *MockSessionRepository) GetActive(ctx context.Context, busID string, day domain.ActivityDate) (*domain.TrackingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[storageKey(busID, day)]
	if !ok || !session.IsActive {
		return nil, nil
	}
	return session.Clone(), nil
}

func (m *MockSessionRepository) Update(ctx context.Context, session *domain.TrackingSession) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := storageKey(session.BusID, session.ActivityDate)
	if _, ok := m.sessions[key]; !ok {
		return repository.ErrNotFound
	}
	m.sessions[key] = session.Clone()
	return nil
}

func (m *MockSessionRepository) ListByBusAndDate(ctx context.Context, busID string, day domain.ActivityDate) ([]*domain.TrackingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.TrackingSession
	if session, ok := m.sessions[storageKey(busID, day)]; ok {
		result = append(result, session.Clone())
	}
	return result, nil
}

// GetSession returns the stored session for test assertions.
func (m *MockSessionRepository) GetSession(busID string, day domain.ActivityDate) *domain.TrackingSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[storageKey(busID, day)]
	if !ok {
		return nil
	}
	return session.Clone()
}

// ──────────────────────────────────────────────
// MOCK ROUTE READER
// ──────────────────────────────────────────────

// MockRouteReader is a mock implementation of RouteReader.
type MockRouteReader struct {
	mu     sync.RWMutex
	routes map[string]*domain.Route
}

// NewMockRouteReader creates a new mock route reader.
func NewMockRouteReader() *MockRouteReader {
	return &MockRouteReader{
		routes: make(map[string]*domain.Route),
	}
}

// AddRoute adds a route to the mock reader.
func (m *MockRouteReader) AddRoute(route *domain.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[route.ID] = route
}

func (m *MockRouteReader) GetRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	route, ok := m.routes[routeID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *route
	copy.Stops = append([]domain.RouteStop(nil), route.Stops...)
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK ROSTER READER
// ──────────────────────────────────────────────

// MockRosterReader is a mock implementation of RosterReader.
type MockRosterReader struct {
	mu          sync.RWMutex
	assignments []domain.StudentAssignment
}

// NewMockRosterReader creates a new mock roster reader.
func NewMockRosterReader() *MockRosterReader {
	return &MockRosterReader{}
}

// AddAssignment adds a child/parent/bus assignment to the mock reader.
func (m *MockRosterReader) AddAssignment(assignment domain.StudentAssignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, assignment)
}

func (m *MockRosterReader) StudentsOnBus(ctx context.Context, busID string) ([]domain.StudentAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.StudentAssignment
	for _, a := range m.assignments {
		if a.BusID == busID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *MockRosterReader) ChildrenOfParent(ctx context.Context, parentID string) ([]domain.StudentAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.StudentAssignment
	for _, a := range m.assignments {
		if a.ParentID == parentID {
			result = append(result, a)
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────
// RECORDING PUBLISHER
// ──────────────────────────────────────────────

// PublishedEvent is one captured Publish call.
type PublishedEvent struct {
	Envelope domain.Envelope
	Topics   []broadcast.Topic
}

// RecordingPublisher captures published events for verification.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

// NewRecordingPublisher creates a new recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(env domain.Envelope, topics ...broadcast.Topic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{
		Envelope: env,
		Topics:   append([]broadcast.Topic(nil), topics...),
	})
}

// Events returns all captured events.
func (p *RecordingPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedEvent(nil), p.events...)
}

// EventsOfType returns captured events with the given event type.
func (p *RecordingPublisher) EventsOfType(eventType domain.EventType) []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []PublishedEvent
	for _, e := range p.events {
		if e.Envelope.EventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore is a mock implementation of LocationStoreInterface.
type MockLocationStore struct {
	mu        sync.RWMutex
	locations map[string][2]float64 // busID -> [lat, lng]

	UpdateCallCount int32
	RemoveCallCount int32
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{
		locations: make(map[string][2]float64),
	}
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, busID string, lat, lng float64) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[busID] = [2]float64{lat, lng}
	return nil
}

func (m *MockLocationStore) FindNearbyBuses(ctx context.Context, lat, lng, radiusKm float64) ([]redis.BusLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []redis.BusLocation
	for busID, loc := range m.locations {
		result = append(result, redis.BusLocation{BusID: busID, Lat: loc[0], Lng: loc[1]})
	}
	return result, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, busID string) error {
	atomic.AddInt32(&m.RemoveCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locations, busID)
	return nil
}

// HasLocation reports whether a bus is present in the store.
func (m *MockLocationStore) HasLocation(busID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.locations[busID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool

	AcquireCallCount int32
	ReleaseCallCount int32
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]bool),
	}
}

func (m *MockLockStore) AcquireSessionLock(ctx context.Context, sessionKey string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[sessionKey] {
		return false, nil
	}
	m.locks[sessionKey] = true
	return true, nil
}

func (m *MockLockStore) ReleaseSessionLock(ctx context.Context, sessionKey string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, sessionKey)
	return nil
}
