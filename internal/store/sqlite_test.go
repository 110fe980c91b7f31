package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(context.Background(), dir+"/test.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeReport(id, orgID, subjectID string, isTest bool, createdAt time.Time) *model.StoredReport {
	return &model.StoredReport{
		ID:            "row-" + id,
		OrgID:         orgID,
		ReportID:      id,
		SubjectID:     subjectID,
		SubjectTypeID: "user-type",
		ReviewerID:    "reviewer-1",
		Media: []model.MediaArtifact{
			{ID: "m1", TypeID: "img", FileID: "f-" + id, XML: "<fileDetails/>"},
		},
		ReportXML:    "<report/>",
		IncidentType: model.IncidentChildPornography,
		IsTest:       isTest,
		CreatedAt:    createdAt,
	}
}

func TestOrgSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetOrgSettings(ctx, "org-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetOrgSettings on empty store: err = %v, want ErrNotFound", err)
	}

	in := &model.OrgSettings{
		OrgID:           "org-1",
		Username:        "esp-user",
		Password:        "esp-pass",
		CompanyTemplate: "Example ESP",
		LegalURL:        "https://example.com/legal",
		Contact:         model.ContactPerson{FirstName: "Pat"},
	}
	if err := s.UpsertOrgSettings(ctx, in); err != nil {
		t.Fatalf("UpsertOrgSettings: %v", err)
	}

	got, err := s.GetOrgSettings(ctx, "org-1")
	if err != nil {
		t.Fatalf("GetOrgSettings: %v", err)
	}
	if got.CompanyTemplate != "Example ESP" || got.Contact.FirstName != "Pat" {
		t.Errorf("got %+v", got)
	}
	if got.EnrichmentEndpoint != "" {
		t.Errorf("EnrichmentEndpoint = %q, want empty", got.EnrichmentEndpoint)
	}

	in.EnrichmentEndpoint = "https://esp.example.com/enrich"
	if err := s.UpsertOrgSettings(ctx, in); err != nil {
		t.Fatalf("UpsertOrgSettings update: %v", err)
	}
	got, _ = s.GetOrgSettings(ctx, "org-1")
	if got.EnrichmentEndpoint != "https://esp.example.com/enrich" {
		t.Errorf("EnrichmentEndpoint = %q after update", got.EnrichmentEndpoint)
	}
}

func TestCreateAndGetReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeReport("1001", "org-1", "user-1", false, time.Now().UTC())
	r.Threads = []model.ThreadArtifact{{FileName: "t1.csv", FileID: "f-t1", CSV: "\"a\""}}
	if err := s.CreateReport(ctx, r); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	got, err := s.GetReport(ctx, "org-1", "1001")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.ReportXML != "<report/>" {
		t.Errorf("ReportXML = %q", got.ReportXML)
	}
	if len(got.Media) != 1 || got.Media[0].FileID != "f-1001" {
		t.Errorf("Media = %+v", got.Media)
	}
	if len(got.AdditionalFiles) != 0 {
		t.Errorf("AdditionalFiles = %+v, want empty", got.AdditionalFiles)
	}
	if len(got.Threads) != 1 || got.Threads[0].CSV != "\"a\"" {
		t.Errorf("Threads = %+v", got.Threads)
	}

	if _, err := s.GetReport(ctx, "org-2", "1001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReport other org: err = %v, want ErrNotFound", err)
	}
}

func TestHasProductionReport(t *testing.T) {
	tests := []struct {
		name    string
		reports []*model.StoredReport
		want    bool
	}{
		{name: "no reports"},
		{
			name:    "test report only",
			reports: []*model.StoredReport{makeReport("1", "org-1", "user-1", true, time.Now())},
		},
		{
			name:    "production report",
			reports: []*model.StoredReport{makeReport("1", "org-1", "user-1", false, time.Now())},
			want:    true,
		},
		{
			name:    "production report for another org",
			reports: []*model.StoredReport{makeReport("1", "org-2", "user-1", false, time.Now())},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			ctx := context.Background()
			for _, r := range tt.reports {
				if err := s.CreateReport(ctx, r); err != nil {
					t.Fatalf("CreateReport: %v", err)
				}
			}
			got, err := s.HasProductionReport(ctx, "org-1", "user-1", "user-type")
			if err != nil {
				t.Fatalf("HasProductionReport: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasProductionReport = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	own := makeReport("3", "org-1", "user-3", true, base.Add(2*time.Hour))
	other := makeReport("4", "org-1", "user-4", true, base.Add(3*time.Hour))
	other.ReviewerID = "reviewer-2"
	for _, r := range []*model.StoredReport{
		makeReport("1", "org-1", "user-1", false, base),
		makeReport("2", "org-1", "user-2", false, base.Add(time.Hour)),
		own,
		other,
		makeReport("5", "org-2", "user-5", false, base),
	} {
		if err := s.CreateReport(ctx, r); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}

	got, err := s.ListReports(ctx, "org-1", "reviewer-1", 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ReportID)
	}
	want := []string{"3", "2", "1"}
	if len(ids) != len(want) {
		t.Fatalf("report ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("report ids = %v, want %v", ids, want)
			break
		}
	}

	limited, err := s.ListReports(ctx, "org-1", "reviewer-1", 1)
	if err != nil {
		t.Fatalf("ListReports limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited len = %d, want 1", len(limited))
	}
}

func TestListSubjectsReportedSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, r := range []*model.StoredReport{
		makeReport("1", "org-1", "user-1", false, base.Add(-24*time.Hour)),
		makeReport("2", "org-1", "user-2", false, base.Add(time.Hour)),
		makeReport("3", "org-1", "user-2", false, base.Add(2*time.Hour)),
		makeReport("4", "org-1", "user-3", true, base.Add(time.Hour)),
	} {
		if err := s.CreateReport(ctx, r); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}

	got, err := s.ListSubjectsReportedSince(ctx, base)
	if err != nil {
		t.Fatalf("ListSubjectsReportedSince: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d subjects, want 1: %+v", len(got), got)
	}
	if got[0].SubjectID != "user-2" || got[0].OrgID != "org-1" {
		t.Errorf("subject = %+v", got[0])
	}
}
