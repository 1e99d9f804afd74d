package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bustrack/internal/domain"
	"bustrack/internal/middleware"
	"bustrack/internal/service"
)

// TrackingHandler handles HTTP requests for tracking sessions.
type TrackingHandler struct {
	trackingService *service.TrackingService
	now             func() time.Time
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(trackingService *service.TrackingService) *TrackingHandler {
	return &TrackingHandler{trackingService: trackingService, now: time.Now}
}

// LocationBody is the HTTP representation of a GPS sample.
type LocationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
}

// EventDetailsBody is the HTTP representation of trip event details.
type EventDetailsBody struct {
	Type        string `json:"type"`
	Location    string `json:"location"`
	Description string `json:"description"`
	ChildID     string `json:"child_id"`
	NextStop    string `json:"next_stop"`
}

// StartTrackingRequest is the HTTP request body for starting a session.
type StartTrackingRequest struct {
	RouteID         string        `json:"route_id"`
	CurrentLocation *LocationBody `json:"current_location"`
}

// UpdateLocationRequest is the HTTP request body for a location update.
type UpdateLocationRequest struct {
	CurrentLocation LocationBody      `json:"current_location"`
	EventDetails    *EventDetailsBody `json:"event_details"`
}

// ReportEmergencyRequest is the HTTP request body for an emergency report.
type ReportEmergencyRequest struct {
	Details  string        `json:"details"`
	Location *LocationBody `json:"location"`
}

// ConnectionInfoRequest is the HTTP request body for a diagnostics update.
type ConnectionInfoRequest struct {
	SignalStrength *int    `json:"signal_strength"`
	ConnectionType *string `json:"connection_type"`
	BatteryLevel   *int    `json:"battery_level"`
	DeviceModel    *string `json:"device_model"`
}

// StopResponse describes the last serviced stop.
type StopResponse struct {
	Name string `json:"name"`
	Time string `json:"time"`
	Kind string `json:"kind"`
}

// NextStopResponse describes the upcoming stop with live estimates.
type NextStopResponse struct {
	Name             string  `json:"name"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	EstimatedArrival string  `json:"estimated_arrival,omitempty"`
	DistanceMeters   float64 `json:"distance_meters"`
}

// HistoryEntryResponse is one trip log record.
type HistoryEntryResponse struct {
	Time      string  `json:"time"`
	Location  string  `json:"location,omitempty"`
	Event     string  `json:"event"`
	Speed     float64 `json:"speed"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// SessionResponse is the HTTP response for session operations.
type SessionResponse struct {
	SessionID       string                 `json:"session_id"`
	BusID           string                 `json:"bus_id"`
	DriverID        string                 `json:"driver_id"`
	RouteID         string                 `json:"route_id"`
	ActivityDate    string                 `json:"activity_date"`
	IsActive        bool                   `json:"is_active"`
	Status          string                 `json:"status"`
	CurrentLocation *LocationBody          `json:"current_location,omitempty"`
	LastStop        *StopResponse          `json:"last_stop,omitempty"`
	NextStop        *NextStopResponse      `json:"next_stop,omitempty"`
	History         []HistoryEntryResponse `json:"history"`
	DelayMinutes    int                    `json:"delay_minutes,omitempty"`
	StartedAt       string                 `json:"started_at"`
	EndedAt         string                 `json:"ended_at,omitempty"`
}

// StartTracking handles POST /v1/tracking/:busId/start
func (h *TrackingHandler) StartTracking(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req StartTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	session, err := h.trackingService.StartTracking(c.Request.Context(), service.StartTrackingRequest{
		BusID:           c.Param("busId"),
		RouteID:         req.RouteID,
		DriverID:        identity.SubjectID,
		ActivityDate:    domain.DateOf(h.now()),
		InitialLocation: locationInput(req.CurrentLocation),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, sessionResponse(session))
}

// UpdateLocation handles POST /v1/tracking/:busId/location
func (h *TrackingHandler) UpdateLocation(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var event *service.EventDetails
	if req.EventDetails != nil {
		event = &service.EventDetails{
			Type:        service.TripEventType(req.EventDetails.Type),
			Location:    req.EventDetails.Location,
			Description: req.EventDetails.Description,
			ChildID:     req.EventDetails.ChildID,
			NextStop:    req.EventDetails.NextStop,
		}
	}

	session, err := h.trackingService.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		BusID:        c.Param("busId"),
		DriverID:     identity.SubjectID,
		ActivityDate: domain.DateOf(h.now()),
		Location: service.LocationInput{
			Latitude:  req.CurrentLocation.Latitude,
			Longitude: req.CurrentLocation.Longitude,
			Speed:     req.CurrentLocation.Speed,
			Heading:   req.CurrentLocation.Heading,
		},
		Event: event,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, sessionResponse(session))
}

// EndTracking handles POST /v1/tracking/:busId/end
func (h *TrackingHandler) EndTracking(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	session, err := h.trackingService.EndTracking(c.Request.Context(), service.EndTrackingRequest{
		BusID:        c.Param("busId"),
		DriverID:     identity.SubjectID,
		ActivityDate: domain.DateOf(h.now()),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, sessionResponse(session))
}

// ReportEmergency handles POST /v1/tracking/:busId/emergency
func (h *TrackingHandler) ReportEmergency(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req ReportEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	session, err := h.trackingService.ReportEmergency(c.Request.Context(), service.ReportEmergencyRequest{
		BusID:        c.Param("busId"),
		DriverID:     identity.SubjectID,
		ActivityDate: domain.DateOf(h.now()),
		Details:      req.Details,
		Location:     locationInput(req.Location),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, sessionResponse(session))
}

// UpdateConnectionInfo handles PATCH /v1/tracking/:busId/connection
func (h *TrackingHandler) UpdateConnectionInfo(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req ConnectionInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	info, err := h.trackingService.UpdateConnectionInfo(c.Request.Context(), service.UpdateConnectionInfoRequest{
		BusID:        c.Param("busId"),
		DriverID:     identity.SubjectID,
		ActivityDate: domain.DateOf(h.now()),
		Patch: domain.ConnectionInfo{
			SignalStrength: req.SignalStrength,
			ConnectionType: req.ConnectionType,
			BatteryLevel:   req.BatteryLevel,
			DeviceModel:    req.DeviceModel,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, info)
}

// GetActiveSession handles GET /v1/tracking/:busId
func (h *TrackingHandler) GetActiveSession(c *gin.Context) {
	session, err := h.trackingService.GetActiveSession(c.Request.Context(), c.Param("busId"), domain.DateOf(h.now()))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, sessionResponse(session))
}

// GetSessionHistory handles GET /v1/tracking/:busId/history?date=YYYY-MM-DD
func (h *TrackingHandler) GetSessionHistory(c *gin.Context) {
	day := domain.ActivityDate(c.Query("date"))
	if day == "" {
		day = domain.DateOf(h.now())
	} else if _, err := time.Parse("2006-01-02", string(day)); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid date"})
		return
	}

	sessions, err := h.trackingService.GetSessionHistory(c.Request.Context(), c.Param("busId"), day)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		response = append(response, sessionResponse(session))
	}

	respondJSON(c, http.StatusOK, response)
}

func locationInput(body *LocationBody) *service.LocationInput {
	if body == nil {
		return nil
	}
	return &service.LocationInput{
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
		Speed:     body.Speed,
		Heading:   body.Heading,
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func sessionResponse(session *domain.TrackingSession) SessionResponse {
	response := SessionResponse{
		SessionID:    session.ID,
		BusID:        session.BusID,
		DriverID:     session.DriverID,
		RouteID:      session.RouteID,
		ActivityDate: string(session.ActivityDate),
		IsActive:     session.IsActive,
		Status:       string(session.Status()),
		DelayMinutes: session.DelayMinutes,
		StartedAt:    session.StartedAt.Format(timeFormat),
	}

	if session.CurrentLocation != nil {
		response.CurrentLocation = &LocationBody{
			Latitude:  session.CurrentLocation.Latitude,
			Longitude: session.CurrentLocation.Longitude,
			Speed:     session.CurrentLocation.Speed,
			Heading:   session.CurrentLocation.Heading,
		}
	}

	if session.LastStop != nil {
		response.LastStop = &StopResponse{
			Name: session.LastStop.Name,
			Time: session.LastStop.Time.Format(timeFormat),
			Kind: string(session.LastStop.Kind),
		}
	}

	if session.NextStop != nil {
		next := &NextStopResponse{
			Name:           session.NextStop.Name,
			Latitude:       session.NextStop.Latitude,
			Longitude:      session.NextStop.Longitude,
			DistanceMeters: session.NextStop.DistanceMeters,
		}
		if !session.NextStop.EstimatedArrival.IsZero() {
			next.EstimatedArrival = session.NextStop.EstimatedArrival.Format(timeFormat)
		}
		response.NextStop = next
	}

	response.History = make([]HistoryEntryResponse, 0, len(session.History))
	for _, entry := range session.History {
		response.History = append(response.History, HistoryEntryResponse{
			Time:      entry.Time.Format(timeFormat),
			Location:  entry.Location,
			Event:     entry.Event,
			Speed:     entry.Speed,
			Latitude:  entry.Latitude,
			Longitude: entry.Longitude,
		})
	}

	if !session.EndedAt.IsZero() {
		response.EndedAt = session.EndedAt.Format(timeFormat)
	}

	return response
}
