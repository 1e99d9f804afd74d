package middleware

import "testing"

func TestIdempotencyCacheKey_ScopedByMethodAndRoute(t *testing.T) {
	t.Parallel()

	locationKey := idempotencyCacheKey("POST", "/v1/tracking/:busId/location", "k-1")
	endKey := idempotencyCacheKey("POST", "/v1/tracking/:busId/end", "k-1")
	if locationKey == endKey {
		t.Error("same client key on different routes must not collide")
	}

	patchKey := idempotencyCacheKey("PATCH", "/v1/tracking/:busId/connection", "k-1")
	postKey := idempotencyCacheKey("POST", "/v1/tracking/:busId/connection", "k-1")
	if patchKey == postKey {
		t.Error("same client key on different methods must not collide")
	}

	if a, b := idempotencyCacheKey("POST", "/v1/tracking/:busId/end", "k-1"), endKey; a != b {
		t.Error("identical requests must map to the same cache key")
	}
}
