package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/model"
	_ "modernc.org/sqlite"
)

// Fixed width so that lexical order in SQL matches time order.
const timeFormat = "2006-01-02 15:04:05.000"

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

// --- Org Settings ---

const orgSettingsColumns = `org_id, username, password, company_template, legal_url, contact_email,
	more_info_url, contact_person_email, contact_person_first_name, contact_person_last_name,
	contact_person_phone, default_internet_detail_type, terms_of_service, enrichment_endpoint,
	preservation_endpoint, updated_at`

func (s *SQLiteStore) GetOrgSettings(ctx context.Context, orgID string) (*model.OrgSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgSettingsColumns+` FROM org_settings WHERE org_id = ?`, orgID)

	var o model.OrgSettings
	var template, legalURL, contactEmail, moreInfo, cpEmail, cpFirst, cpLast, cpPhone,
		internetType, tos, enrichment, preservation sql.NullString
	var updatedAt string
	err := row.Scan(&o.OrgID, &o.Username, &o.Password, &template, &legalURL, &contactEmail,
		&moreInfo, &cpEmail, &cpFirst, &cpLast, &cpPhone, &internetType, &tos, &enrichment,
		&preservation, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.CompanyTemplate = template.String
	o.LegalURL = legalURL.String
	o.ContactEmail = contactEmail.String
	o.MoreInfoURL = moreInfo.String
	o.Contact = model.ContactPerson{
		Email:     cpEmail.String,
		FirstName: cpFirst.String,
		LastName:  cpLast.String,
		Phone:     cpPhone.String,
	}
	o.DefaultInternetDetailType = internetType.String
	o.TermsOfService = tos.String
	o.EnrichmentEndpoint = enrichment.String
	o.PreservationEndpoint = preservation.String
	o.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &o, nil
}

func (s *SQLiteStore) UpsertOrgSettings(ctx context.Context, o *model.OrgSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO org_settings (`+orgSettingsColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id) DO UPDATE SET
		   username = excluded.username,
		   password = excluded.password,
		   company_template = excluded.company_template,
		   legal_url = excluded.legal_url,
		   contact_email = excluded.contact_email,
		   more_info_url = excluded.more_info_url,
		   contact_person_email = excluded.contact_person_email,
		   contact_person_first_name = excluded.contact_person_first_name,
		   contact_person_last_name = excluded.contact_person_last_name,
		   contact_person_phone = excluded.contact_person_phone,
		   default_internet_detail_type = excluded.default_internet_detail_type,
		   terms_of_service = excluded.terms_of_service,
		   enrichment_endpoint = excluded.enrichment_endpoint,
		   preservation_endpoint = excluded.preservation_endpoint,
		   updated_at = excluded.updated_at`,
		o.OrgID, o.Username, o.Password, nullString(o.CompanyTemplate), nullString(o.LegalURL),
		nullString(o.ContactEmail), nullString(o.MoreInfoURL), nullString(o.Contact.Email),
		nullString(o.Contact.FirstName), nullString(o.Contact.LastName), nullString(o.Contact.Phone),
		nullString(o.DefaultInternetDetailType), nullString(o.TermsOfService),
		nullString(o.EnrichmentEndpoint), nullString(o.PreservationEndpoint),
		time.Now().UTC().Format(timeFormat))
	return err
}

// --- Reports ---

const reportColumns = `id, org_id, report_id, user_id, user_item_type_id, reviewer_id, reported_media,
	additional_files, reported_messages, report_xml, incident_type, is_test, created_at`

func (s *SQLiteStore) CreateReport(ctx context.Context, r *model.StoredReport) error {
	mediaJSON, err := json.Marshal(nonNil(r.Media))
	if err != nil {
		return fmt.Errorf("marshal reported media: %w", err)
	}
	filesJSON, err := json.Marshal(nonNil(r.AdditionalFiles))
	if err != nil {
		return fmt.Errorf("marshal additional files: %w", err)
	}
	threadsJSON, err := json.Marshal(nonNil(r.Threads))
	if err != nil {
		return fmt.Errorf("marshal reported messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrgID, r.ReportID, r.SubjectID, r.SubjectTypeID, r.ReviewerID,
		string(mediaJSON), string(filesJSON), string(threadsJSON), r.ReportXML,
		string(r.IncidentType), boolToInt(r.IsTest), r.CreatedAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) HasProductionReport(ctx context.Context, orgID, subjectID, subjectTypeID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM reports
		 WHERE org_id = ? AND user_id = ? AND user_item_type_id = ? AND is_test = 0
		 LIMIT 1`, orgID, subjectID, subjectTypeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, orgID, reportID string) (*model.StoredReport, error) {
	r, err := s.scanReport(s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE org_id = ? AND report_id = ?`, orgID, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) ListReports(ctx context.Context, orgID, reviewerID string, limit int) ([]*model.StoredReport, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE org_id = ? AND (is_test = 0 OR reviewer_id = ?)
		 ORDER BY created_at DESC
		 LIMIT ?`, orgID, reviewerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*model.StoredReport
	for rows.Next() {
		r, err := s.scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *SQLiteStore) ListSubjectsReportedSince(ctx context.Context, since time.Time) ([]model.ReportedSubject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, user_item_type_id, org_id FROM reports
		 WHERE created_at >= ? AND is_test = 0
		 GROUP BY user_id, user_item_type_id, org_id
		 ORDER BY org_id, user_id`, since.UTC().Format(timeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []model.ReportedSubject
	for rows.Next() {
		var rs model.ReportedSubject
		if err := rows.Scan(&rs.SubjectID, &rs.SubjectTypeID, &rs.OrgID); err != nil {
			return nil, err
		}
		subjects = append(subjects, rs)
	}
	return subjects, rows.Err()
}

func (s *SQLiteStore) scanReport(row scannable) (*model.StoredReport, error) {
	var r model.StoredReport
	var mediaJSON, filesJSON, threadsJSON, incidentType, createdAt string
	var isTest int
	err := row.Scan(&r.ID, &r.OrgID, &r.ReportID, &r.SubjectID, &r.SubjectTypeID, &r.ReviewerID,
		&mediaJSON, &filesJSON, &threadsJSON, &r.ReportXML, &incidentType, &isTest, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(mediaJSON), &r.Media); err != nil {
		return nil, fmt.Errorf("unmarshal reported media for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(filesJSON), &r.AdditionalFiles); err != nil {
		return nil, fmt.Errorf("unmarshal additional files for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(threadsJSON), &r.Threads); err != nil {
		return nil, fmt.Errorf("unmarshal reported messages for %s: %w", r.ID, err)
	}
	r.IncidentType = model.IncidentType(incidentType)
	r.IsTest = isTest != 0
	r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &r, nil
}

// --- Helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nonNil keeps empty artifact lists as "[]" rather than "null".
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
