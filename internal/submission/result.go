package submission

import (
	"errors"

	"github.com/endharassment/cybertip-reporter/internal/report"
)

// Outcome is the caller-visible result of a submission.
type Outcome string

const (
	OutcomeSuccess         Outcome = "SUCCESS"
	OutcomeAllMediaMissing Outcome = "ALL_MEDIA_MISSING"
	OutcomeUnsupportedOrg  Outcome = "UNSUPPORTED_ORG"
	OutcomeFailure         Outcome = "FAILURE"
)

// Result is returned by value from every submission. Err is set only for
// OutcomeFailure; ReportID is set once /submit has succeeded, even if a
// later phase failed.
type Result struct {
	Outcome  Outcome
	ReportID string
	Err      error
	// Phases lists the phases the run entered, in order.
	Phases []Phase
}

var (
	ErrReportingDisabled  = errors.New("reporting is not enabled for org")
	ErrNoMedia            = report.ErrNoMedia
	ErrIncompleteSettings = errors.New("org reporting settings need a company template and legal URL")
	ErrInvalidEscalation  = report.ErrInvalidEscalation
	ErrDuplicateReport    = errors.New("user already has a production report")
	ErrRejected           = errors.New("cybertip rejected request")
	ErrDownloadFailed     = errors.New("downloading file failed")
	ErrPanic              = errors.New("submission panicked")
)
