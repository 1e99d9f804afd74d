package broadcast

import (
	"testing"

	"bustrack/internal/domain"
)

func TestRegistry_ConnectAutoJoinsRoleTopic(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	driver := r.Connect(domain.Identity{SubjectID: "d-1", Role: domain.RoleDriver})
	parent := r.Connect(domain.Identity{SubjectID: "p-1", Role: domain.RoleParent})
	admin := r.Connect(domain.Identity{SubjectID: "a-1", Role: domain.RoleAdmin})

	if !r.Joined(driver, DriverTopic("d-1")) {
		t.Error("driver not auto-joined to driver topic")
	}
	if !r.Joined(parent, ParentTopic("p-1")) {
		t.Error("parent not auto-joined to parent topic")
	}
	if !r.Joined(admin, TopicAdmins) {
		t.Error("admin not auto-joined to admins topic")
	}
}

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	conn := r.Connect(domain.Identity{SubjectID: "p-1", Role: domain.RoleParent})

	r.Join(conn, BusTopic("B1"))
	r.Join(conn, BusTopic("B1"))

	if got := len(r.Subscribers(BusTopic("B1"))); got != 1 {
		t.Errorf("expected 1 subscriber after double join, got %d", got)
	}
}

func TestRegistry_LeaveNonJoinedTopicIsNoOp(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	conn := r.Connect(domain.Identity{SubjectID: "p-1", Role: domain.RoleParent})

	r.Leave(conn, BusTopic("B1")) // never joined

	if !r.Joined(conn, ParentTopic("p-1")) {
		t.Error("leave of a non-joined topic must not affect other joins")
	}
}

func TestRegistry_DisconnectRemovesAllJoins(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	conn := r.Connect(domain.Identity{SubjectID: "p-1", Role: domain.RoleParent})
	r.Join(conn, BusTopic("B1"))
	r.Join(conn, ChildTopic("C1"))

	r.Disconnect(conn)

	for _, topic := range []Topic{ParentTopic("p-1"), BusTopic("B1"), ChildTopic("C1")} {
		if len(r.Subscribers(topic)) != 0 {
			t.Errorf("topic %s still has subscribers after disconnect", topic)
		}
	}

	// Done is closed after disconnect; Send stays open for late publishers.
	select {
	case <-conn.Done():
	default:
		t.Error("done channel not closed after disconnect")
	}
	select {
	case _, open := <-conn.Send:
		if !open {
			t.Error("send channel must stay open after disconnect")
		}
	default:
	}

	// Join after disconnect is ignored.
	r.Join(conn, BusTopic("B2"))
	if len(r.Subscribers(BusTopic("B2"))) != 0 {
		t.Error("join after disconnect should be a no-op")
	}
}

func TestTopic_Axis(t *testing.T) {
	t.Parallel()

	axis, id := BusTopic("B1").Axis()
	if axis != "bus" || id != "B1" {
		t.Errorf("got (%s, %s)", axis, id)
	}

	axis, id = TopicAdmins.Axis()
	if axis != "admins" || id != "" {
		t.Errorf("got (%s, %s)", axis, id)
	}
}
