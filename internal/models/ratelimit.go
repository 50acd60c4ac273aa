package models

// RateLimitRecord is the per-client submission counter for a single UTC day.
type RateLimitRecord struct {
	Count int    `json:"count"`
	Date  string `json:"date"` // YYYY-MM-DD, UTC
}

// RateLimitTable maps a client identifier (IP address) to its record.
// It is persisted as one JSON blob.
type RateLimitTable map[string]RateLimitRecord

// Prune removes every record not dated today and reports how many were removed.
func (t RateLimitTable) Prune(today string) int {
	removed := 0
	for client, rec := range t {
		if rec.Date != today {
			delete(t, client)
			removed++
		}
	}
	return removed
}
