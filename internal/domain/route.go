package domain

import "time"

// RouteType declares which direction a route runs.
type RouteType string

const (
	RouteTypeMorning   RouteType = "morning"
	RouteTypeAfternoon RouteType = "afternoon"
)

// RouteStop is a scheduled stop on a route, ordered by Sequence.
type RouteStop struct {
	Name        string
	Latitude    float64
	Longitude   float64
	ScheduledAt time.Time
	Kind        StopKind
	Sequence    int
}

// Route is read-only reference data owned by an external system.
type Route struct {
	ID    string
	Name  string
	Type  RouteType
	BusID string
	Stops []RouteStop
}

// FirstStop returns the first stop on the route, or nil if the route has none.
func (r *Route) FirstStop() *RouteStop {
	if len(r.Stops) == 0 {
		return nil
	}
	return &r.Stops[0]
}

// StopByName returns the named stop, or nil if not on the route.
func (r *Route) StopByName(name string) *RouteStop {
	for i := range r.Stops {
		if r.Stops[i].Name == name {
			return &r.Stops[i]
		}
	}
	return nil
}

// StudentAssignment links a child riding a bus to their parent.
// Also read-only reference data.
type StudentAssignment struct {
	ChildID   string
	ChildName string
	ParentID  string
	BusID     string
}
