// Package analysis defines the data model shared by the fetch, retry and
// reduction stages: roster entities, per-company results, batch results and
// the nested driver/log records returned by the remote analysis API.
package analysis

import (
	"time"
)

// Entity is a company descriptor taken from a tenant's roster.
type Entity struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// LogRecord is a single diagnostic log line. Only errorMessage is interpreted,
// every other field is carried through untouched.
type LogRecord map[string]any

// ErrorMessage returns the record's errorMessage field, or "" when absent.
func (l LogRecord) ErrorMessage() string {
	msg, _ := l["errorMessage"].(string)
	return msg
}

// DriverRecord groups the log lines of one driver.
type DriverRecord struct {
	DriverID   string      `json:"driverId,omitempty"`
	DriverName string      `json:"driverName,omitempty"`
	Logs       []LogRecord `json:"logs"`
}

// Document is the analysis payload the remote API returns for one company.
type Document struct {
	CompanyID     string         `json:"companyId,omitempty"`
	CompanyName   string         `json:"companyName,omitempty"`
	DriverRecords []DriverRecord `json:"driverRecords"`
}

// Status tags an EntityResult as success or failure.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ErrorDetail carries the remote response behind a failure, when there was one.
type ErrorDetail struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Body       string `json:"body,omitempty"`
	Class      string `json:"class,omitempty"`
}

// DetailedError is implemented by errors that can describe the remote
// response which caused them.
type DetailedError interface {
	error
	Detail() *ErrorDetail
}

// EntityResult is the outcome of fetching one company. A success carries a
// Payload, a failure carries Error and optionally ErrorDetail.
type EntityResult struct {
	Tenant      string        `json:"origin"`
	CompanyID   string        `json:"companyId,omitempty"`
	CompanyName string        `json:"companyName,omitempty"`
	Status      Status        `json:"status"`
	Payload     *Document     `json:"payload,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorDetail *ErrorDetail  `json:"errorDetail,omitempty"`
	Duration    time.Duration `json:"duration"`

	reduced bool
}

// Succeeded reports whether the result is a success.
func (r *EntityResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Reduced reports whether the reduction stages already ran over this result.
func (r *EntityResult) Reduced() bool {
	return r.reduced
}

// MarkReduced flags the result as reduced so later passes skip its logs.
func (r *EntityResult) MarkReduced() {
	r.reduced = true
}

// Entity returns the roster descriptor the result belongs to.
func (r *EntityResult) Entity() Entity {
	return Entity{ID: r.CompanyID, Name: r.CompanyName}
}

// RetryMetadata describes how a run reached its final result.
type RetryMetadata struct {
	RunID               string        `json:"runId,omitempty"`
	TotalAttempts       int           `json:"totalAttempts"`
	MaxRetries          int           `json:"maxRetries"`
	IndividualRetryUsed bool          `json:"individualRetryUsed"`
	Recovered           int           `json:"recovered"`
	TotalExecutionTime  time.Duration `json:"totalExecutionTime"`
}

// ProcessingStats is the snapshot of reduction counters attached to a summary.
type ProcessingStats struct {
	TotalLogsProcessed int            `json:"totalLogsProcessed"`
	TotalLogsRemoved   int            `json:"totalLogsRemoved"`
	RemainingLogs      int            `json:"remainingLogs"`
	RemovedByRule      map[string]int `json:"removedByRule"`
	CompaniesProcessed int            `json:"companiesProcessed"`
	DriversProcessed   int            `json:"driversProcessed"`
}

// Summary aggregates a batch result.
type Summary struct {
	Tenant               string        `json:"origin"`
	TotalEntities        int           `json:"totalEntities"`
	Successful           int           `json:"successful"`
	Failed               int           `json:"failed"`
	SuccessRate          float64       `json:"successRate"`
	ExecutionTime        time.Duration `json:"executionTime"`
	AverageTimePerEntity time.Duration `json:"averageTimePerEntity"`

	RetryMetadata   *RetryMetadata   `json:"retryMetadata,omitempty"`
	ProcessedAt     *time.Time       `json:"processedAt,omitempty"`
	FiltersApplied  []string         `json:"filtersApplied,omitempty"`
	ProcessingStats *ProcessingStats `json:"processingStats,omitempty"`
}
