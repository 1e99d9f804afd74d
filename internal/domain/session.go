package domain

import "time"

// SessionStatus represents the current status of a tracking session.
type SessionStatus string

const (
	StatusPreparing       SessionStatus = "preparing"
	StatusEnRouteToSchool SessionStatus = "en_route_to_school"
	StatusAtSchool        SessionStatus = "at_school"
	StatusEnRouteToHome   SessionStatus = "en_route_to_home"
	StatusCompleted       SessionStatus = "completed"
	StatusEmergency       SessionStatus = "emergency"
)

// transitions lists the legal status moves. StatusEmergency is not part of
// the table: it is an overlay flag on the session, not a transit state.
var transitions = map[SessionStatus][]SessionStatus{
	StatusPreparing:       {StatusEnRouteToSchool, StatusEnRouteToHome},
	StatusEnRouteToSchool: {StatusAtSchool, StatusCompleted},
	StatusAtSchool:        {StatusEnRouteToHome, StatusCompleted},
	StatusEnRouteToHome:   {StatusCompleted},
}

// CanTransition reports whether the transit status may move from one state to another.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActivityDate is the calendar day a session belongs to, formatted YYYY-MM-DD.
// Together with the bus ID it is the session lookup key.
type ActivityDate string

// DateOf returns the activity date for the given instant.
func DateOf(t time.Time) ActivityDate {
	return ActivityDate(t.Format("2006-01-02"))
}

// LocationFix is a single GPS sample. Speed is in mph, heading in degrees.
type LocationFix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

// StopKind classifies a visited stop.
type StopKind string

const (
	StopKindPickup  StopKind = "pickup"
	StopKindDropoff StopKind = "dropoff"
	StopKindSchool  StopKind = "school"
	StopKindOther   StopKind = "other"
)

// LastStop records the most recent stop the bus serviced.
type LastStop struct {
	Name string    `json:"name"`
	Time time.Time `json:"time"`
	Kind StopKind  `json:"kind"`
}

// NextStop is the routing anchor for distance and ETA computation.
// DistanceMeters and EstimatedArrival are always derived from the last
// location fix; they are recomputed whenever a new fix arrives.
type NextStop struct {
	Name             string    `json:"name"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	ScheduledAt      time.Time `json:"scheduled_at,omitempty"`
	EstimatedArrival time.Time `json:"estimated_arrival"`
	DistanceMeters   float64   `json:"distance_meters"`
}

// HistoryEntry is one record in the session's append-only trip log.
type HistoryEntry struct {
	Time      time.Time `json:"time"`
	Location  string    `json:"location,omitempty"`
	Event     string    `json:"event"`
	Speed     float64   `json:"speed"`
	Latitude  float64   `json:"latitude,omitempty"`
	Longitude float64   `json:"longitude,omitempty"`
}

// ConnectionInfo holds diagnostic metadata about the driver device.
// Fields are pointers so a partial update can distinguish "absent" from zero.
type ConnectionInfo struct {
	SignalStrength *int      `json:"signal_strength,omitempty"`
	ConnectionType *string   `json:"connection_type,omitempty"`
	BatteryLevel   *int      `json:"battery_level,omitempty"`
	DeviceModel    *string   `json:"device_model,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Merge overwrites only the fields present in the patch.
func (c *ConnectionInfo) Merge(patch ConnectionInfo) {
	if patch.SignalStrength != nil {
		c.SignalStrength = patch.SignalStrength
	}
	if patch.ConnectionType != nil {
		c.ConnectionType = patch.ConnectionType
	}
	if patch.BatteryLevel != nil {
		c.BatteryLevel = patch.BatteryLevel
	}
	if patch.DeviceModel != nil {
		c.DeviceModel = patch.DeviceModel
	}
	if !patch.UpdatedAt.IsZero() {
		c.UpdatedAt = patch.UpdatedAt
	}
}

// TrackingSession is the tracked record of one bus's trip for one calendar day.
//
// Emergency is an overlay flag: TransitStatus keeps advancing underneath it,
// and Status() reports StatusEmergency while the flag is set on an active
// session. There is no clear-emergency transition; ending the session is the
// only way off of it.
type TrackingSession struct {
	ID              string
	BusID           string
	DriverID        string
	RouteID         string
	ActivityDate    ActivityDate
	IsActive        bool
	TransitStatus   SessionStatus
	Emergency       bool
	CurrentLocation *LocationFix
	LastStop        *LastStop
	NextStop        *NextStop
	History         []HistoryEntry
	DelayMinutes    int
	ConnectionInfo  ConnectionInfo
	StartedAt       time.Time
	EndedAt         time.Time
}

// Status returns the externally visible session status.
func (s *TrackingSession) Status() SessionStatus {
	if s.Emergency && s.TransitStatus != StatusCompleted {
		return StatusEmergency
	}
	return s.TransitStatus
}

// AppendHistory adds an entry to the trip log. History is append-only;
// entries are never reordered or removed once written.
func (s *TrackingSession) AppendHistory(entry HistoryEntry) {
	s.History = append(s.History, entry)
}

// Clone returns a deep copy of the session.
func (s *TrackingSession) Clone() *TrackingSession {
	out := *s
	if s.CurrentLocation != nil {
		fix := *s.CurrentLocation
		out.CurrentLocation = &fix
	}
	if s.LastStop != nil {
		stop := *s.LastStop
		out.LastStop = &stop
	}
	if s.NextStop != nil {
		stop := *s.NextStop
		out.NextStop = &stop
	}
	if s.History != nil {
		out.History = make([]HistoryEntry, len(s.History))
		copy(out.History, s.History)
	}
	return &out
}
