// Package errs defines the crawl error taxonomy. Stage code wraps failures
// into one of these classes so the orchestrator can decide whether to retry,
// skip, or abort the remaining batch.
package errs

import (
	"errors"
	"fmt"
)

// Class names an error category for run summaries.
type Class string

const (
	ClassStructural Class = "structural"
	ClassTransient  Class = "transient"
	ClassNoOdds     Class = "no_odds"
	ClassQuality    Class = "quality"
	ClassClockSkew  Class = "clock_skew"
	// ClassUnknown covers errors outside the taxonomy, like a plain 404.
	// They are not retryable and must not masquerade as transient.
	ClassUnknown Class = "unknown"
)

// StructuralError signals a selector or shape mismatch: the source changed
// and every subsequent extraction in the stage will fail identically.
type StructuralError struct {
	Stage  string
	Detail string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural change in %s: %s", e.Stage, e.Detail)
}

// Structural builds a StructuralError for a stage.
func Structural(stage, format string, args ...any) error {
	return &StructuralError{Stage: stage, Detail: fmt.Sprintf(format, args...)}
}

// TransientError wraps a timeout, 429, or 5xx that is eligible for retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// NoOddsError is an expected skip, not a failure: empty token, cancelled
// match, or a market that never opened.
type NoOddsError struct {
	MatchID string
	Reason  string
}

func (e *NoOddsError) Error() string {
	return fmt.Sprintf("no odds available for %s: %s", e.MatchID, e.Reason)
}

// NoOdds builds a NoOddsError.
func NoOdds(matchID, reason string) error {
	return &NoOddsError{MatchID: matchID, Reason: reason}
}

// QualityError reports a record outside plausible bounds or a malformed
// nested structure. The record is dropped and counted; the run continues.
type QualityError struct {
	Detail string
}

func (e *QualityError) Error() string { return "data quality: " + e.Detail }

// Quality builds a QualityError.
func Quality(format string, args ...any) error {
	return &QualityError{Detail: fmt.Sprintf(format, args...)}
}

// ClockSkewError flags history timestamps inconsistent with the hasStarted
// flag. Logged, never blocks emission.
type ClockSkewError struct {
	MatchID string
	Detail  string
}

func (e *ClockSkewError) Error() string {
	return fmt.Sprintf("clock skew on %s: %s", e.MatchID, e.Detail)
}

// IsStructural reports whether err is a structural-change error.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsNoOdds reports whether err is an expected no-odds skip.
func IsNoOdds(err error) bool {
	var ne *NoOddsError
	return errors.As(err, &ne)
}

// IsQuality reports whether err is a data-quality drop.
func IsQuality(err error) bool {
	var qe *QualityError
	return errors.As(err, &qe)
}

// Classify maps err onto its taxonomy class for summary reporting.
func Classify(err error) Class {
	switch {
	case IsStructural(err):
		return ClassStructural
	case IsTransient(err):
		return ClassTransient
	case IsNoOdds(err):
		return ClassNoOdds
	case IsQuality(err):
		return ClassQuality
	default:
		var cs *ClockSkewError
		if errors.As(err, &cs) {
			return ClassClockSkew
		}
		return ClassUnknown
	}
}
