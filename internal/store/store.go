package store

import (
	"context"
	"errors"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DefaultListLimit caps ListReports when the caller passes no limit.
const DefaultListLimit = 300

// SettingsStore returns per-organization reporting configuration.
type SettingsStore interface {
	// GetOrgSettings returns ErrNotFound when reporting is not enabled for orgID.
	GetOrgSettings(ctx context.Context, orgID string) (*model.OrgSettings, error)
	UpsertOrgSettings(ctx context.Context, settings *model.OrgSettings) error
}

// ReportStore is the durable sink for completed submissions.
type ReportStore interface {
	CreateReport(ctx context.Context, report *model.StoredReport) error
	HasProductionReport(ctx context.Context, orgID, subjectID, subjectTypeID string) (bool, error)
	GetReport(ctx context.Context, orgID, reportID string) (*model.StoredReport, error)
	// ListReports returns production reports plus the reviewer's own test
	// reports, newest first.
	ListReports(ctx context.Context, orgID, reviewerID string, limit int) ([]*model.StoredReport, error)
	ListSubjectsReportedSince(ctx context.Context, since time.Time) ([]model.ReportedSubject, error)
}

// Store defines the persistence interface for the reporting pipeline.
type Store interface {
	SettingsStore
	ReportStore
}
