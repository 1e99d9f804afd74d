package broadcast

import (
	"strings"

	"bustrack/internal/domain"
)

// Topic is a named broadcast channel that live connections may join.
// The topic namespace has fixed axes: bus, child, parent, driver and a
// single shared admins topic.
type Topic string

// TopicAdmins is the shared topic all administrator connections join.
const TopicAdmins Topic = "admins"

// BusTopic returns the topic carrying a bus's session events.
func BusTopic(busID string) Topic { return Topic("bus:" + busID) }

// ChildTopic returns the topic carrying events about one child.
func ChildTopic(childID string) Topic { return Topic("child:" + childID) }

// ParentTopic returns a parent's personal topic.
func ParentTopic(parentID string) Topic { return Topic("parent:" + parentID) }

// DriverTopic returns a driver's personal topic.
func DriverTopic(driverID string) Topic { return Topic("driver:" + driverID) }

// RoleTopic returns the topic a connection is auto-joined to at connect time.
func RoleTopic(identity domain.Identity) Topic {
	switch identity.Role {
	case domain.RoleDriver:
		return DriverTopic(identity.SubjectID)
	case domain.RoleParent:
		return ParentTopic(identity.SubjectID)
	default:
		return TopicAdmins
	}
}

// Axis returns the topic's namespace axis ("bus", "child", "parent",
// "driver" or "admins") and the identifier part, if any.
func (t Topic) Axis() (string, string) {
	axis, id, ok := strings.Cut(string(t), ":")
	if !ok {
		return string(t), ""
	}
	return axis, id
}
