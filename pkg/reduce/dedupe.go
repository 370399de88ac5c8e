package reduce

import (
	"github.com/Sternrassler/eld-analysis/pkg/analysis"
)

// DedupeCompanies keeps the first result for every company key, in
// first-seen order. Later duplicates are dropped without merging their
// drivers. Results with no key are kept as they are.
func DedupeCompanies(list []*analysis.EntityResult) []*analysis.EntityResult {
	seen := make(map[string]struct{}, len(list))
	out := make([]*analysis.EntityResult, 0, len(list))
	for _, r := range list {
		if r == nil {
			continue
		}
		key, ok := analysis.CompanyKey(r)
		if ok {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}

// DedupeDrivers merges drivers sharing a key into the first occurrence by
// appending the later logs in encounter order. Drivers with no key are kept
// unmerged.
func DedupeDrivers(drivers []analysis.DriverRecord) []analysis.DriverRecord {
	index := make(map[string]int, len(drivers))
	out := make([]analysis.DriverRecord, 0, len(drivers))
	for _, d := range drivers {
		key, ok := analysis.DriverKey(d)
		if !ok {
			out = append(out, d)
			continue
		}
		if i, dup := index[key]; dup {
			out[i].Logs = append(out[i].Logs, d.Logs...)
			continue
		}
		index[key] = len(out)
		d.Logs = append([]analysis.LogRecord(nil), d.Logs...)
		out = append(out, d)
	}
	return out
}

// PruneEmptyDrivers removes drivers left without logs.
func PruneEmptyDrivers(drivers []analysis.DriverRecord) []analysis.DriverRecord {
	out := drivers[:0]
	for _, d := range drivers {
		if len(d.Logs) > 0 {
			out = append(out, d)
		}
	}
	return out
}
