package store

import (
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
)

// Record is a stored run result.
type Record struct {
	// RunID of the orchestrator run that produced Result
	RunID string `json:"run_id"`

	// Tenant the run belongs to
	Tenant string `json:"tenant"`

	// Result is the fully reduced batch
	Result *analysis.BatchResult `json:"result"`

	// StoredAt is when the record was written
	StoredAt time.Time `json:"stored_at"`

	// Expires is when Redis drops the record
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the record has expired.
func (r *Record) IsExpired() bool {
	return time.Now().After(r.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (r *Record) TTL() time.Duration {
	ttl := time.Until(r.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
