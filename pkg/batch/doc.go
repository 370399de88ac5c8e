// Package batch fetches the analysis documents of every company in a tenant
// concurrently and aggregates them into an analysis.BatchResult.
//
// Every fetch settles into a tagged success or failure; a failing (or
// panicking) fetch never aborts its siblings, and FetchBatch returns only
// after all fetches have settled. Batch latency is therefore the latency of
// the slowest company.
//
// Example usage:
//
//	f := batch.NewFetcher(apiClient, batch.DefaultConfig(), logger)
//	result, err := f.FetchBatch(ctx, "east", entities)
//
// Fan-out is bounded by Config.MaxConcurrency. Zero keeps the unbounded
// behavior where a tenant with N companies issues N simultaneous calls.
//
// Slice order in the result is completion order, not roster order. Callers
// that need roster order use BatchResult.SortByRoster.
package batch
