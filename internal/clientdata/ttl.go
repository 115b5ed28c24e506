package clientdata

import "time"

// TTL constants for cached data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLDailySeries covers full daily close histories; a new bar lands once per trading day.
	TTLDailySeries = 20 * time.Hour
)

// StaleRetention is how long an expired series is kept as the loader's
// fallback for when the API is unreachable.
const StaleRetention = 7 * 24 * time.Hour
