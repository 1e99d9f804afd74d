package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/domain"
)

// CacheStore handles reference-data caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	// RosterCacheTTL bounds staleness of bus roster lookups. Assignments
	// change rarely during a school day.
	RosterCacheTTL = 5 * time.Minute
)

const rosterCachePrefix = "cache:roster:"

// cachedAssignment is the wire form of a roster entry in cache.
type cachedAssignment struct {
	ChildID   string `json:"child_id"`
	ChildName string `json:"child_name"`
	ParentID  string `json:"parent_id"`
	BusID     string `json:"bus_id"`
}

// GetRoster retrieves a bus roster from cache. Returns nil on a miss.
func (s *CacheStore) GetRoster(ctx context.Context, busID string) ([]domain.StudentAssignment, error) {
	key := rosterCachePrefix + busID
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached []cachedAssignment
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	roster := make([]domain.StudentAssignment, 0, len(cached))
	for _, c := range cached {
		roster = append(roster, domain.StudentAssignment{
			ChildID:   c.ChildID,
			ChildName: c.ChildName,
			ParentID:  c.ParentID,
			BusID:     c.BusID,
		})
	}
	return roster, nil
}

// SetRoster stores a bus roster in cache.
func (s *CacheStore) SetRoster(ctx context.Context, busID string, roster []domain.StudentAssignment) error {
	cached := make([]cachedAssignment, 0, len(roster))
	for _, a := range roster {
		cached = append(cached, cachedAssignment{
			ChildID:   a.ChildID,
			ChildName: a.ChildName,
			ParentID:  a.ParentID,
			BusID:     a.BusID,
		})
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rosterCachePrefix+busID, data, RosterCacheTTL).Err()
}

// InvalidateRoster removes a bus roster from cache.
func (s *CacheStore) InvalidateRoster(ctx context.Context, busID string) error {
	return s.client.Del(ctx, rosterCachePrefix+busID).Err()
}

// AddTrackedBus adds a bus to the set of buses with a live session,
// for fast fleet-dashboard lookups.
func (s *CacheStore) AddTrackedBus(ctx context.Context, busID string) error {
	return s.client.SAdd(ctx, "tracked_buses", busID).Err()
}

// RemoveTrackedBus removes a bus from the tracked set.
func (s *CacheStore) RemoveTrackedBus(ctx context.Context, busID string) error {
	return s.client.SRem(ctx, "tracked_buses", busID).Err()
}

// GetTrackedBuses returns all bus IDs with a live session.
func (s *CacheStore) GetTrackedBuses(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, "tracked_buses").Result()
}
