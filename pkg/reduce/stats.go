package reduce

import (
	"maps"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
)

// Stats accumulates reduction counters. It is not safe for concurrent use;
// one Stats belongs to one run.
type Stats struct {
	TotalLogsProcessed int
	TotalLogsRemoved   int
	RemovedByRule      map[string]int
	CompaniesProcessed int
	DriversProcessed   int
}

// Snapshot copies the counters into the summary form.
func (s *Stats) Snapshot() *analysis.ProcessingStats {
	return &analysis.ProcessingStats{
		TotalLogsProcessed: s.TotalLogsProcessed,
		TotalLogsRemoved:   s.TotalLogsRemoved,
		RemainingLogs:      s.TotalLogsProcessed - s.TotalLogsRemoved,
		RemovedByRule:      maps.Clone(s.RemovedByRule),
		CompaniesProcessed: s.CompaniesProcessed,
		DriversProcessed:   s.DriversProcessed,
	}
}
