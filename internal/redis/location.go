package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const busLocationKey = "buses:locations"

// BusLocation represents a bus's last known position.
type BusLocation struct {
	BusID string
	Lat   float64
	Lng   float64
}

// LocationStore mirrors accepted location fixes into a Redis GEO index for
// fleet-wide queries. The session record stays the source of truth.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a bus's position using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, busID string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, busLocationKey, &redis.GeoLocation{
		Name:      busID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// FindNearbyBuses returns buses within the given radius (in kilometers).
func (s *LocationStore) FindNearbyBuses(ctx context.Context, lat, lng, radiusKm float64) ([]BusLocation, error) {
	results, err := s.client.GeoRadius(ctx, busLocationKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]BusLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, BusLocation{
			BusID: r.Name,
			Lat:   r.Latitude,
			Lng:   r.Longitude,
		})
	}

	return locations, nil
}

// RemoveLocation removes a bus from the geo index, e.g. when its session ends.
func (s *LocationStore) RemoveLocation(ctx context.Context, busID string) error {
	return s.client.ZRem(ctx, busLocationKey, busID).Err()
}
