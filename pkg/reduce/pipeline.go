// Package reduce deduplicates company and driver records in a batch result
// and strips noise log lines with an ordered list of filter rules.
package reduce

import (
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var logsRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eld_reduce_logs_removed_total",
	Help: "Log records removed by filter rule",
}, []string{"rule"})

// Pipeline applies the reduction stages in order: deduplicate companies,
// merge drivers per company, filter logs, prune emptied drivers.
type Pipeline struct {
	rules  []Rule
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a pipeline over a private copy of rules.
func New(rules []Rule, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		rules:  append([]Rule(nil), rules...),
		logger: logger.With().Str("component", "reducer").Logger(),
		now:    time.Now,
	}
}

// RuleNames returns the rule names in evaluation order.
func (p *Pipeline) RuleNames() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name
	}
	return names
}

// NewStats returns an accumulator with a zero counter for every rule.
func (p *Pipeline) NewStats() *Stats {
	s := &Stats{RemovedByRule: make(map[string]int, len(p.rules))}
	for _, r := range p.rules {
		s.RemovedByRule[r.StatKey] = 0
	}
	return s
}

// Reduce mutates batch in place and adds to stats.
//
// Results present only in All are first sorted into Successes or Failures
// by status. Both lists are then deduplicated independently and All is
// rebuilt as their union. Results already reduced by an earlier call are
// deduplicated again but their logs are not re-filtered or re-counted, so
// every log is counted once per Stats. A nil stats starts a fresh count.
// The summary is then annotated with the timestamp, rule names and a
// snapshot of stats.
func (p *Pipeline) Reduce(batch *analysis.BatchResult, stats *Stats) {
	if batch == nil {
		return
	}
	if stats == nil {
		stats = p.NewStats()
	}
	if stats.RemovedByRule == nil {
		stats.RemovedByRule = make(map[string]int, len(p.rules))
	}

	adoptOrphans(batch)
	batch.Successes = p.reduceList(batch.Successes, stats)
	batch.Failures = p.reduceList(batch.Failures, stats)
	reconcile(batch)

	now := p.now()
	batch.Summary.ProcessedAt = &now
	batch.Summary.FiltersApplied = p.RuleNames()
	batch.Summary.ProcessingStats = stats.Snapshot()

	p.logger.Info().
		Str("tenant", batch.Summary.Tenant).
		Int("logs_processed", stats.TotalLogsProcessed).
		Int("logs_removed", stats.TotalLogsRemoved).
		Int("companies", stats.CompaniesProcessed).
		Int("drivers", stats.DriversProcessed).
		Msg("Batch reduced")
}

// reduceList runs every stage over one result list.
func (p *Pipeline) reduceList(list []*analysis.EntityResult, stats *Stats) []*analysis.EntityResult {
	list = DedupeCompanies(list)
	for _, r := range list {
		if r.Reduced() {
			continue
		}
		r.MarkReduced()
		stats.CompaniesProcessed++

		if r.Payload == nil {
			continue
		}
		drivers := DedupeDrivers(r.Payload.DriverRecords)
		stats.DriversProcessed += len(drivers)
		for i := range drivers {
			drivers[i].Logs = p.filterLogs(drivers[i].Logs, stats)
		}
		r.Payload.DriverRecords = PruneEmptyDrivers(drivers)
	}
	return list
}

// filterLogs drops every log whose first matching rule fires.
func (p *Pipeline) filterLogs(logs []analysis.LogRecord, stats *Stats) []analysis.LogRecord {
	kept := logs[:0]
	for _, l := range logs {
		stats.TotalLogsProcessed++
		if rule, ok := p.match(l); ok {
			stats.TotalLogsRemoved++
			stats.RemovedByRule[rule.StatKey]++
			logsRemovedTotal.WithLabelValues(rule.Name).Inc()
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

// match returns the first rule matching the log's errorMessage.
func (p *Pipeline) match(l analysis.LogRecord) (Rule, bool) {
	msg := l.ErrorMessage()
	for _, r := range p.rules {
		if r.Match(msg) {
			return r, true
		}
	}
	return Rule{}, false
}

// adoptOrphans moves results that appear only in All into Successes or
// Failures by status, so every list is reduced through the same entries.
func adoptOrphans(batch *analysis.BatchResult) {
	listed := make(map[*analysis.EntityResult]struct{}, len(batch.Successes)+len(batch.Failures))
	for _, list := range [][]*analysis.EntityResult{batch.Successes, batch.Failures} {
		for _, r := range list {
			listed[r] = struct{}{}
		}
	}
	for _, r := range batch.All {
		if r == nil {
			continue
		}
		if _, ok := listed[r]; ok {
			continue
		}
		listed[r] = struct{}{}
		if r.Succeeded() {
			batch.Successes = append(batch.Successes, r)
		} else {
			batch.Failures = append(batch.Failures, r)
		}
	}
}

// reconcile drops failures whose company also succeeded and keeps All equal
// to the union of the two lists, in All's existing order.
func reconcile(batch *analysis.BatchResult) {
	succeeded := make(map[string]struct{}, len(batch.Successes))
	members := make(map[*analysis.EntityResult]struct{}, len(batch.Successes)+len(batch.Failures))
	for _, r := range batch.Successes {
		if key, ok := analysis.CompanyKey(r); ok {
			succeeded[key] = struct{}{}
		}
		members[r] = struct{}{}
	}
	failures := batch.Failures[:0]
	for _, r := range batch.Failures {
		if key, ok := analysis.CompanyKey(r); ok {
			if _, dup := succeeded[key]; dup {
				continue
			}
		}
		failures = append(failures, r)
		members[r] = struct{}{}
	}
	batch.Failures = failures

	all := make([]*analysis.EntityResult, 0, len(members))
	for _, r := range batch.All {
		if _, ok := members[r]; ok {
			all = append(all, r)
			delete(members, r)
		}
	}
	for _, list := range [][]*analysis.EntityResult{batch.Successes, batch.Failures} {
		for _, r := range list {
			if _, ok := members[r]; ok {
				all = append(all, r)
				delete(members, r)
			}
		}
	}
	batch.All = all
	batch.Recount()
}
