package reduce

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
	"github.com/rs/zerolog"
)

func logs(msgs ...string) []analysis.LogRecord {
	out := make([]analysis.LogRecord, len(msgs))
	for i, m := range msgs {
		out[i] = analysis.LogRecord{"errorMessage": m}
	}
	return out
}

func messages(ls []analysis.LogRecord) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ErrorMessage()
	}
	return out
}

func company(id string, drivers ...analysis.DriverRecord) *analysis.EntityResult {
	return analysis.NewSuccess("east", analysis.Entity{ID: id, Name: "company-" + id},
		&analysis.Document{DriverRecords: drivers}, 0)
}

func newPipeline() *Pipeline {
	p := New(DefaultRules(), zerolog.Nop())
	p.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestReduce_FilterRemoval(t *testing.T) {
	c := company("1", analysis.DriverRecord{
		DriverName: "Ann",
		Logs:       logs("SEQUENTIAL ID BREAK WARNING", "REAL EVENT"),
	})
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{c}, 0)

	p := newPipeline()
	stats := p.NewStats()
	p.Reduce(batch, stats)

	got := messages(batch.Successes[0].Payload.DriverRecords[0].Logs)
	if !reflect.DeepEqual(got, []string{"REAL EVENT"}) {
		t.Fatalf("logs = %v, want [REAL EVENT]", got)
	}
	if stats.TotalLogsRemoved != 1 || stats.TotalLogsProcessed != 2 {
		t.Errorf("removed/processed = %d/%d, want 1/2", stats.TotalLogsRemoved, stats.TotalLogsProcessed)
	}
	if stats.RemovedByRule["sequentialIdBreakRemoved"] != 1 {
		t.Errorf("RemovedByRule = %v", stats.RemovedByRule)
	}
}

func TestReduce_PrunesEmptiedDriver(t *testing.T) {
	c := company("1",
		analysis.DriverRecord{DriverName: "Ann", Logs: logs("SEQUENTIAL ID BREAK WARNING")},
		analysis.DriverRecord{DriverName: "Bob", Logs: logs("REAL EVENT")},
	)
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{c}, 0)

	p := newPipeline()
	p.Reduce(batch, p.NewStats())

	drivers := batch.Successes[0].Payload.DriverRecords
	if len(drivers) != 1 || drivers[0].DriverName != "Bob" {
		t.Fatalf("drivers = %+v, want only Bob", drivers)
	}
}

func TestReduce_DriverLogMerge(t *testing.T) {
	c := company("1",
		analysis.DriverRecord{DriverName: "Ann", Logs: logs("a", "b")},
		analysis.DriverRecord{DriverID: "9", DriverName: "Ann", Logs: logs("c")},
	)
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{c}, 0)

	p := New(nil, zerolog.Nop())
	p.Reduce(batch, p.NewStats())

	drivers := batch.Successes[0].Payload.DriverRecords
	if len(drivers) != 1 {
		t.Fatalf("drivers = %d, want 1", len(drivers))
	}
	if got := messages(drivers[0].Logs); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("merged logs = %v, want [a b c]", got)
	}
}

func TestReduce_CompanyFirstOccurrenceWins(t *testing.T) {
	first := company("1", analysis.DriverRecord{DriverName: "Ann", Logs: logs("x")})
	second := company("1", analysis.DriverRecord{DriverName: "Bob", Logs: logs("y")})
	other := company("2", analysis.DriverRecord{DriverName: "Cy", Logs: logs("z")})
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{first, other, second}, 0)

	p := New(nil, zerolog.Nop())
	stats := p.NewStats()
	p.Reduce(batch, stats)

	if len(batch.Successes) != 2 || batch.Successes[0] != first || batch.Successes[1] != other {
		t.Fatalf("successes = %+v", batch.Successes)
	}
	if len(first.Payload.DriverRecords) != 1 || first.Payload.DriverRecords[0].DriverName != "Ann" {
		t.Errorf("duplicate company drivers were merged: %+v", first.Payload.DriverRecords)
	}
	if len(batch.All) != 2 {
		t.Errorf("All = %d, want 2", len(batch.All))
	}
	if stats.CompaniesProcessed != 2 {
		t.Errorf("CompaniesProcessed = %d, want 2", stats.CompaniesProcessed)
	}
}

func TestReduce_FirstMatchingRuleWins(t *testing.T) {
	narrow := Contains("narrow", "narrowRemoved", "ID BREAK WARNING")
	broad := Contains("broad", "broadRemoved", "WARNING")
	c := company("1", analysis.DriverRecord{
		DriverName: "Ann",
		Logs:       logs("SEQUENTIAL ID BREAK WARNING", "LOW BATTERY WARNING", "REAL EVENT"),
	})
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{c}, 0)

	p := New([]Rule{narrow, broad}, zerolog.Nop())
	stats := p.NewStats()
	p.Reduce(batch, stats)

	if stats.RemovedByRule["narrowRemoved"] != 1 || stats.RemovedByRule["broadRemoved"] != 1 {
		t.Errorf("RemovedByRule = %v, want narrow=1 broad=1", stats.RemovedByRule)
	}
}

func TestReduce_Conservation(t *testing.T) {
	a := company("1",
		analysis.DriverRecord{DriverName: "Ann", Logs: logs("SEQUENTIAL ID BREAK WARNING", "REAL EVENT", "TIMING COMPLIANCE MALFUNCTION")},
		analysis.DriverRecord{DriverName: "Ann", Logs: logs("REAL EVENT 2")},
	)
	b := company("2", analysis.DriverRecord{DriverID: "d1", Logs: logs("POWER DATA DIAGNOSTIC", "X")})
	f := analysis.NewFailure("east", analysis.Entity{ID: "3"}, errors.New("down"), 0)
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{a, f, b}, 0)

	p := newPipeline()
	stats := p.NewStats()
	p.Reduce(batch, stats)

	ps := batch.Summary.ProcessingStats
	if ps.TotalLogsProcessed != ps.TotalLogsRemoved+ps.RemainingLogs {
		t.Errorf("processed %d != removed %d + remaining %d", ps.TotalLogsProcessed, ps.TotalLogsRemoved, ps.RemainingLogs)
	}
	if got := batch.RemainingLogs(); got != ps.RemainingLogs {
		t.Errorf("logs present = %d, RemainingLogs = %d", got, ps.RemainingLogs)
	}
	if ps.TotalLogsProcessed != 6 {
		t.Errorf("TotalLogsProcessed = %d, want 6 (shared results counted once)", ps.TotalLogsProcessed)
	}
	if len(batch.Successes)+len(batch.Failures) != len(batch.All) {
		t.Errorf("lists out of balance")
	}
}

func TestReduce_SecondPassDoesNotRecount(t *testing.T) {
	a := company("1", analysis.DriverRecord{DriverName: "Ann", Logs: logs("SEQUENTIAL ID BREAK WARNING", "REAL EVENT")})
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{a}, 0)

	p := newPipeline()
	stats := p.NewStats()
	p.Reduce(batch, stats)

	recovered := company("2", analysis.DriverRecord{DriverName: "Bob", Logs: logs("REAL", "SEQUENTIAL ID BREAK WARNING")})
	batch.Rebuild(append(batch.Successes, recovered), nil)
	p.Reduce(batch, stats)

	if stats.TotalLogsProcessed != 4 || stats.TotalLogsRemoved != 2 {
		t.Errorf("processed/removed = %d/%d, want 4/2", stats.TotalLogsProcessed, stats.TotalLogsRemoved)
	}
	if stats.CompaniesProcessed != 2 {
		t.Errorf("CompaniesProcessed = %d, want 2", stats.CompaniesProcessed)
	}
}

func TestReduce_Idempotent(t *testing.T) {
	a := company("1",
		analysis.DriverRecord{DriverName: "Ann", Logs: logs("a")},
		analysis.DriverRecord{DriverName: "Ann", Logs: logs("b")},
	)
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{a, company("1")}, 0)

	p := New(nil, zerolog.Nop())
	p.Reduce(batch, p.NewStats())
	once := messages(batch.Successes[0].Payload.DriverRecords[0].Logs)

	drivers := DedupeDrivers(batch.Successes[0].Payload.DriverRecords)
	companies := DedupeCompanies(batch.Successes)

	if len(companies) != 1 || len(drivers) != 1 {
		t.Fatalf("second dedupe changed shape: companies=%d drivers=%d", len(companies), len(drivers))
	}
	if got := messages(drivers[0].Logs); !reflect.DeepEqual(got, once) {
		t.Errorf("second dedupe changed logs: %v vs %v", got, once)
	}
}

func TestReduce_ToleratesMalformedRecords(t *testing.T) {
	noPayload := &analysis.EntityResult{Tenant: "east", CompanyID: "1", Status: analysis.StatusSuccess}
	noKey := &analysis.EntityResult{Tenant: "east", Status: analysis.StatusSuccess, Payload: &analysis.Document{
		DriverRecords: []analysis.DriverRecord{
			{Logs: nil},
			{Logs: logs("kept")},
			{Logs: logs("kept too")},
		},
	}}
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{noPayload, noKey, nil}, 0)

	p := New(nil, zerolog.Nop())
	p.Reduce(batch, p.NewStats())

	if len(batch.Successes) != 2 {
		t.Fatalf("successes = %d, want 2", len(batch.Successes))
	}
	if got := len(noKey.Payload.DriverRecords); got != 2 {
		t.Errorf("keyless drivers = %d, want 2 (unmerged, empty one pruned)", got)
	}
}

func TestReduce_AnnotatesSummary(t *testing.T) {
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{company("1")}, 0)

	p := newPipeline()
	p.Reduce(batch, p.NewStats())

	s := batch.Summary
	if s.ProcessedAt == nil || !s.ProcessedAt.Equal(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ProcessedAt = %v", s.ProcessedAt)
	}
	if !reflect.DeepEqual(s.FiltersApplied, p.RuleNames()) {
		t.Errorf("FiltersApplied = %v", s.FiltersApplied)
	}
	if s.ProcessingStats == nil || len(s.ProcessingStats.RemovedByRule) != len(DefaultRules()) {
		t.Errorf("ProcessingStats = %+v", s.ProcessingStats)
	}
}

func TestNew_CopiesRules(t *testing.T) {
	rules := []Rule{Contains("a", "a", "A")}
	p := New(rules, zerolog.Nop())
	rules[0] = Contains("b", "b", "B")

	if p.RuleNames()[0] != "a" {
		t.Error("pipeline shares the caller's rule slice")
	}
}

func TestReduce_AllOnlyBatch(t *testing.T) {
	ok := company("1", analysis.DriverRecord{DriverID: "d1", Logs: logs("SEQUENTIAL ID BREAK WARNING", "REAL EVENT")})
	dup := company("1", analysis.DriverRecord{DriverID: "d9", Logs: logs("dropped with its company")})
	failed := analysis.NewFailure("east", analysis.Entity{ID: "2"}, errors.New("down"), 0)
	batch := &analysis.BatchResult{
		Summary: analysis.Summary{Tenant: "east"},
		All:     []*analysis.EntityResult{ok, failed, dup},
	}

	p := newPipeline()
	stats := p.NewStats()
	p.Reduce(batch, stats)

	if len(batch.All) != 2 || batch.All[0] != ok || batch.All[1] != failed {
		t.Fatalf("All = %+v, want [company 1, company 2]", batch.All)
	}
	if len(batch.Successes) != 1 || batch.Successes[0] != ok {
		t.Errorf("Successes = %+v", batch.Successes)
	}
	if len(batch.Failures) != 1 || batch.Failures[0] != failed {
		t.Errorf("Failures = %+v", batch.Failures)
	}
	if batch.Summary.Successful != 1 || batch.Summary.Failed != 1 {
		t.Errorf("summary = %d/%d, want 1/1", batch.Summary.Successful, batch.Summary.Failed)
	}

	ps := batch.Summary.ProcessingStats
	if got := batch.RemainingLogs(); got != ps.RemainingLogs || got != 1 {
		t.Errorf("logs present = %d, RemainingLogs = %d, want 1", got, ps.RemainingLogs)
	}
	if ps.TotalLogsProcessed != 2 || ps.TotalLogsRemoved != 1 {
		t.Errorf("processed/removed = %d/%d, want 2/1", ps.TotalLogsProcessed, ps.TotalLogsRemoved)
	}
}

func TestReduce_NilStats(t *testing.T) {
	c := company("1", analysis.DriverRecord{DriverID: "d1", Logs: logs("TIMING COMPLIANCE", "REAL EVENT")})
	batch := analysis.NewBatchResult("east", []*analysis.EntityResult{c}, 0)

	newPipeline().Reduce(batch, nil)

	ps := batch.Summary.ProcessingStats
	if ps == nil {
		t.Fatal("ProcessingStats not set")
	}
	if ps.TotalLogsRemoved != 1 || ps.RemainingLogs != 1 {
		t.Errorf("removed/remaining = %d/%d, want 1/1", ps.TotalLogsRemoved, ps.RemainingLogs)
	}
}
