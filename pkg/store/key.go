package store

import (
	"net/url"
)

// keyPrefix namespaces every key written by the store.
const keyPrefix = "eld:analysis"

// Key identifies a stored run of one tenant.
type Key struct {
	// Tenant is the origin the run belongs to
	Tenant string

	// RunID is the orchestrator run id; empty addresses the latest pointer
	RunID string
}

// String generates the Redis key.
// Format: eld:analysis:{tenant}:run:{runID} or eld:analysis:{tenant}:latest
//
// The tenant is query-escaped, so a colon in it cannot reach into another
// tenant's namespace and distinct tenants never share a key.
func (k Key) String() string {
	tenant := url.QueryEscape(k.Tenant)
	if k.RunID == "" {
		return keyPrefix + ":" + tenant + ":latest"
	}
	return keyPrefix + ":" + tenant + ":run:" + k.RunID
}
