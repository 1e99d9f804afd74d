package domain

import "time"

// EventType identifies a session event pushed to subscribers.
// The set is closed: publishers and subscribers share this contract.
type EventType string

const (
	EventSessionStarted  EventType = "session-started"
	EventLocationUpdated EventType = "location-updated"
	EventStudentPickup   EventType = "student-pickup"
	EventStudentDropoff  EventType = "student-dropoff"
	EventEmergencyRaised EventType = "emergency-raised"
)

// EventPayload is implemented by the fixed payload type of each event.
type EventPayload interface {
	isEventPayload()
}

// SessionStartedPayload accompanies EventSessionStarted.
type SessionStartedPayload struct {
	SessionID string        `json:"session_id"`
	RouteID   string        `json:"route_id"`
	Status    SessionStatus `json:"status"`
	NextStop  *NextStop     `json:"next_stop,omitempty"`
	StartedAt time.Time     `json:"started_at"`
}

// LocationUpdatedPayload accompanies EventLocationUpdated.
type LocationUpdatedPayload struct {
	Location     LocationFix   `json:"location"`
	Status       SessionStatus `json:"status"`
	NextStop     *NextStop     `json:"next_stop,omitempty"`
	DelayMinutes int           `json:"delay_minutes,omitempty"`
}

// StudentStopPayload accompanies EventStudentPickup and EventStudentDropoff.
type StudentStopPayload struct {
	ChildID   string      `json:"child_id"`
	ChildName string      `json:"child_name,omitempty"`
	StopName  string      `json:"stop_name"`
	Kind      StopKind    `json:"kind"`
	Location  LocationFix `json:"location"`
}

// EmergencyRaisedPayload accompanies EventEmergencyRaised.
type EmergencyRaisedPayload struct {
	Details  string       `json:"details"`
	Location *LocationFix `json:"location,omitempty"`
	RaisedAt time.Time    `json:"raised_at"`
}

func (SessionStartedPayload) isEventPayload()  {}
func (LocationUpdatedPayload) isEventPayload() {}
func (StudentStopPayload) isEventPayload()     {}
func (EmergencyRaisedPayload) isEventPayload() {}

// Envelope is the wire frame pushed to topic subscribers. Topic is filled in
// by the broadcaster with the topic the subscriber matched on.
type Envelope struct {
	Topic      string       `json:"topic"`
	EventType  EventType    `json:"event_type"`
	BusID      string       `json:"bus_id"`
	ChildID    string       `json:"child_id,omitempty"`
	ParentID   string       `json:"parent_id,omitempty"`
	Payload    EventPayload `json:"payload"`
	ServerTime time.Time    `json:"server_time"`
}
