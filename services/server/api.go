package server

// HTTP API types and error taxonomy

import (
	"time"

	"session-backtest/services/report"
	"session-backtest/services/runner"
)

// APIError is the error body of every failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e APIError) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + ": " + e.Details
	}
	return e.Code + ": " + e.Message
}

// With returns a copy of e carrying details.
func (e APIError) With(details string) APIError {
	e.Details = details
	return e
}

var (
	ErrInvalidParams   = APIError{Code: "INVALID_PARAMS", Message: "Invalid parameters provided"}
	ErrDataNotFound    = APIError{Code: "DATA_NOT_FOUND", Message: "Required data not available"}
	ErrRunNotFound     = APIError{Code: "RUN_NOT_FOUND", Message: "No run with that id"}
	ErrExecutionFailed = APIError{Code: "EXECUTION_FAILED", Message: "Backtest execution failed"}
	ErrTimeout         = APIError{Code: "TIMEOUT", Message: "Operation timed out"}
)

// RunRequest starts a backtest over a CSV file readable by the server.
type RunRequest struct {
	CSVPath         string   `json:"csv_path" binding:"required"`
	Years           string   `json:"years"`
	Variants        []string `json:"variants"`
	Intrabar        string   `json:"intrabar"`
	Escalation      bool     `json:"escalation"`
	TrackUsedLevels bool     `json:"track_used_levels"`
	PartialLock     bool     `json:"partial_lock"`
}

type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// VariantResult is the per-variant headline of a run.
type VariantResult struct {
	Variant       string  `json:"variant"`
	Bars          int     `json:"bars"`
	Trades        int     `json:"trades"`
	Net           string  `json:"net"`
	WinRate       string  `json:"win_rate"`
	ElapsedMs     int64   `json:"elapsed_ms"`
	BarsPerSecond float64 `json:"bars_per_second"`
}

// RunResponse describes a finished or failed run.
type RunResponse struct {
	JobID     string           `json:"job_id"`
	Status    RunStatus        `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	Manifest  *runner.Manifest `json:"manifest,omitempty"`
	Results   []VariantResult  `json:"results,omitempty"`
	Summaries []report.Summary `json:"summaries,omitempty"`
	Error     *APIError        `json:"error,omitempty"`
}
