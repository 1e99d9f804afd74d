package redis

import (
	"context"
	"time"
)

// LocationStoreInterface defines the interface for live bus position operations.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, busID string, lat, lng float64) error
	FindNearbyBuses(ctx context.Context, lat, lng, radiusKm float64) ([]BusLocation, error)
	RemoveLocation(ctx context.Context, busID string) error
}

// LockStoreInterface defines the interface for distributed session locking.
type LockStoreInterface interface {
	AcquireSessionLock(ctx context.Context, sessionKey string, ttl time.Duration) (bool, error)
	ReleaseSessionLock(ctx context.Context, sessionKey string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
)
