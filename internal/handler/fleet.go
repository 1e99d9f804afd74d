package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	internalRedis "bustrack/internal/redis"
)

// FleetHandler serves fleet-wide position queries for administrators.
type FleetHandler struct {
	locationStore internalRedis.LocationStoreInterface
	cacheStore    *internalRedis.CacheStore
}

// NewFleetHandler creates a new FleetHandler.
func NewFleetHandler(locationStore internalRedis.LocationStoreInterface, cacheStore *internalRedis.CacheStore) *FleetHandler {
	return &FleetHandler{locationStore: locationStore, cacheStore: cacheStore}
}

// BusLocationResponse is one bus position in the fleet view.
type BusLocationResponse struct {
	BusID     string  `json:"bus_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NearbyBuses handles GET /v1/buses/nearby?lat=..&lng=..&radius_km=..
func (h *FleetHandler) NearbyBuses(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid lat"})
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid lng"})
		return
	}

	radiusKm := 10.0
	if raw := c.Query("radius_km"); raw != "" {
		if radiusKm, err = strconv.ParseFloat(raw, 64); err != nil || radiusKm <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid radius_km"})
			return
		}
	}

	locations, err := h.locationStore.FindNearbyBuses(c.Request.Context(), lat, lng, radiusKm)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]BusLocationResponse, 0, len(locations))
	for _, loc := range locations {
		response = append(response, BusLocationResponse{
			BusID:     loc.BusID,
			Latitude:  loc.Lat,
			Longitude: loc.Lng,
		})
	}

	respondJSON(c, http.StatusOK, response)
}

// TrackedBusesResponse lists the buses with a live session.
type TrackedBusesResponse struct {
	BusIDs []string `json:"bus_ids"`
}

// TrackedBuses handles GET /v1/buses/tracked
func (h *FleetHandler) TrackedBuses(c *gin.Context) {
	busIDs, err := h.cacheStore.GetTrackedBuses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if busIDs == nil {
		busIDs = []string{}
	}

	respondJSON(c, http.StatusOK, TrackedBusesResponse{BusIDs: busIDs})
}
