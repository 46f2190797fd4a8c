package storage

import (
	"time"
)

// CrawlRun captures one pipeline execution for auditing and for the
// alerting layer to compare consecutive runs.
type CrawlRun struct {
	ID            int64
	LeagueURL     string
	StartedAt     time.Time
	FinishedAt    time.Time
	Matches       int
	Succeeded     int
	Skipped       int
	Failed        int
	Snapshots     int
	QualityIssues int
	Status        string
	Error         *string
	CreatedAt     time.Time
}

// Run statuses.
const (
	RunStatusOK      = "ok"
	RunStatusErrored = "errored"
)
