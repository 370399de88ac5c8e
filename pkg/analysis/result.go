package analysis

import (
	"errors"
	"sort"
	"time"
)

// BatchResult is the outcome of one pass over a tenant's roster.
//
// All holds the same *EntityResult values as Successes and Failures, so a
// mutation through one slice is visible through the others.
type BatchResult struct {
	Summary   Summary         `json:"summary"`
	Successes []*EntityResult `json:"successResults"`
	Failures  []*EntityResult `json:"failedResults"`
	All       []*EntityResult `json:"allResults"`
}

// NewSuccess builds a success result for entity.
func NewSuccess(tenant string, entity Entity, doc *Document, took time.Duration) *EntityResult {
	return &EntityResult{
		Tenant:      tenant,
		CompanyID:   entity.ID,
		CompanyName: entity.Name,
		Status:      StatusSuccess,
		Payload:     doc,
		Duration:    took,
	}
}

// NewFailure builds a failure result for entity from err. When err (or
// anything it wraps) is a DetailedError the remote response is kept.
func NewFailure(tenant string, entity Entity, err error, took time.Duration) *EntityResult {
	r := &EntityResult{
		Tenant:      tenant,
		CompanyID:   entity.ID,
		CompanyName: entity.Name,
		Status:      StatusFailure,
		Duration:    took,
	}
	if err != nil {
		r.Error = err.Error()
		var detailed DetailedError
		if errors.As(err, &detailed) {
			r.ErrorDetail = detailed.Detail()
		}
	}
	return r
}

// NewBatchResult splits results into successes and failures and computes the
// summary. Slice order follows the order of results; nil entries are skipped.
func NewBatchResult(tenant string, results []*EntityResult, elapsed time.Duration) *BatchResult {
	b := &BatchResult{All: make([]*EntityResult, 0, len(results))}
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Succeeded() {
			b.Successes = append(b.Successes, r)
		} else {
			b.Failures = append(b.Failures, r)
		}
		b.All = append(b.All, r)
	}
	b.Summary = Summary{
		Tenant:        tenant,
		TotalEntities: len(b.All),
		ExecutionTime: elapsed,
	}
	if len(b.All) > 0 {
		b.Summary.AverageTimePerEntity = elapsed / time.Duration(len(b.All))
	}
	b.Recount()
	return b
}

// Rebuild replaces the success and failure lists, rebuilds All as their
// concatenation and recounts the summary.
func (b *BatchResult) Rebuild(successes, failures []*EntityResult) {
	b.Successes = successes
	b.Failures = failures
	b.All = make([]*EntityResult, 0, len(successes)+len(failures))
	b.All = append(b.All, successes...)
	b.All = append(b.All, failures...)
	b.Recount()
}

// Recount refreshes Successful, Failed and SuccessRate from the lists.
func (b *BatchResult) Recount() {
	b.Summary.Successful = len(b.Successes)
	b.Summary.Failed = len(b.Failures)
	total := b.Summary.Successful + b.Summary.Failed
	if total > b.Summary.TotalEntities {
		b.Summary.TotalEntities = total
	}
	b.Summary.SuccessRate = 0
	if b.Summary.TotalEntities > 0 {
		b.Summary.SuccessRate = float64(b.Summary.Successful) / float64(b.Summary.TotalEntities) * 100
	}
}

// SortByRoster orders every list by the position of each company in roster.
// Companies missing from the roster sort last, keeping their relative order.
func (b *BatchResult) SortByRoster(roster []Entity) {
	index := make(map[string]int, len(roster))
	for i, e := range roster {
		if _, seen := index[e.ID]; !seen {
			index[e.ID] = i
		}
	}
	pos := func(r *EntityResult) int {
		if i, ok := index[r.CompanyID]; ok {
			return i
		}
		return len(roster)
	}
	for _, list := range [][]*EntityResult{b.Successes, b.Failures, b.All} {
		sort.SliceStable(list, func(i, j int) bool {
			return pos(list[i]) < pos(list[j])
		})
	}
}

// RemainingLogs counts the log records present across the unique results.
func (b *BatchResult) RemainingLogs() int {
	seen := make(map[*EntityResult]struct{}, len(b.All))
	total := 0
	for _, list := range [][]*EntityResult{b.Successes, b.Failures, b.All} {
		for _, r := range list {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			if r.Payload == nil {
				continue
			}
			for _, d := range r.Payload.DriverRecords {
				total += len(d.Logs)
			}
		}
	}
	return total
}
