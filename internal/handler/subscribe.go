package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bustrack/internal/broadcast"
	"bustrack/internal/domain"
	"bustrack/internal/middleware"
	"bustrack/internal/repository"
)

// upgrader configures the WebSocket connection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeTimeout = 10 * time.Second

// SubscribeHandler upgrades authenticated clients to a live event stream.
// Each connection is auto-joined to its role topic and may additionally
// join or leave bus and child topics within its authorization scope.
type SubscribeHandler struct {
	registry *broadcast.Registry
	roster   repository.RosterReader
}

// NewSubscribeHandler creates a new SubscribeHandler.
func NewSubscribeHandler(registry *broadcast.Registry, roster repository.RosterReader) *SubscribeHandler {
	return &SubscribeHandler{registry: registry, roster: roster}
}

// subscriberCommand is a join/leave frame from the client.
type subscriberCommand struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// errorFrame is pushed when a command is rejected.
type errorFrame struct {
	Error string `json:"error"`
}

// Subscribe handles GET /v1/subscribe
func (h *SubscribeHandler) Subscribe(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing credential"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	conn := h.registry.Connect(identity)
	defer h.registry.Disconnect(conn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ws.Close()
		for {
			select {
			case payload := <-conn.Send:
				_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var cmd subscriberCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			sendError(conn, "malformed command")
			continue
		}

		topic := broadcast.Topic(cmd.Topic)
		switch cmd.Action {
		case "join":
			if !h.joinAllowed(c.Request.Context(), identity, topic) {
				sendError(conn, "topic outside role scope")
				continue
			}
			h.registry.Join(conn, topic)
		case "leave":
			h.registry.Leave(conn, topic)
		default:
			sendError(conn, "unknown action")
		}
	}

	h.registry.Disconnect(conn)
	<-done
	_ = ws.Close()
}

// sendError queues an error frame on the connection's outbound channel so
// the write pump stays the socket's only writer.
func sendError(conn *broadcast.Connection, message string) {
	payload, err := json.Marshal(errorFrame{Error: message})
	if err != nil {
		return
	}
	select {
	case conn.Send <- payload:
	default:
	}
}

// joinAllowed applies the role scope rules: admins may join any topic,
// drivers any bus topic, parents only their own children and those
// children's buses.
func (h *SubscribeHandler) joinAllowed(ctx context.Context, identity domain.Identity, topic broadcast.Topic) bool {
	if topic == broadcast.RoleTopic(identity) {
		return true
	}
	if identity.Role == domain.RoleAdmin {
		return true
	}

	axis, id := topic.Axis()
	if id == "" {
		return false
	}

	switch identity.Role {
	case domain.RoleDriver:
		return axis == "bus"
	case domain.RoleParent:
		if axis != "bus" && axis != "child" {
			return false
		}
		children, err := h.roster.ChildrenOfParent(ctx, identity.SubjectID)
		if err != nil {
			log.Printf("subscribe: load children of parent %s: %v", identity.SubjectID, err)
			return false
		}
		for _, a := range children {
			if (axis == "child" && a.ChildID == id) || (axis == "bus" && a.BusID == id) {
				return true
			}
		}
	}
	return false
}
