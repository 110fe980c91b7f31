package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/model"
	"github.com/endharassment/cybertip-reporter/internal/report"
	"github.com/endharassment/cybertip-reporter/internal/store"
	"github.com/endharassment/cybertip-reporter/internal/submission"
	"github.com/go-chi/chi/v5"
)

// maxRequestBytes bounds a submission body. Media are passed by URL, so
// requests are small.
const maxRequestBytes = 4 << 20

type submitResponse struct {
	Outcome  submission.Outcome `json:"outcome"`
	ReportID string             `json:"reportId,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// HandleSubmitReport files a report for the org in the path. ?test=true
// sends it to the test environment.
func (s *Server) HandleSubmitReport(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	isTest, err := parseBool(r.URL.Query().Get("test"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid test parameter")
		return
	}

	var req model.ReportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid report request: "+err.Error())
		return
	}
	req.OrgID = orgID

	res := s.submitter.Submit(r.Context(), &req, isTest)
	resp := submitResponse{Outcome: res.Outcome, ReportID: res.ReportID}
	status := submitStatus(res)
	if res.Err != nil {
		if status < http.StatusInternalServerError {
			resp.Error = res.Err.Error()
		} else {
			resp.Error = "submission failed"
		}
	}
	writeJSON(w, status, resp)
}

// submitStatus maps a submission result to an HTTP status. Caller mistakes
// are 4xx; failures talking to the service or the org are 502.
func submitStatus(res submission.Result) int {
	switch res.Outcome {
	case submission.OutcomeSuccess:
		return http.StatusCreated
	case submission.OutcomeAllMediaMissing, submission.OutcomeUnsupportedOrg:
		return http.StatusOK
	}
	switch {
	case errors.Is(res.Err, submission.ErrDuplicateReport):
		return http.StatusConflict
	case errors.Is(res.Err, submission.ErrReportingDisabled):
		return http.StatusForbidden
	case errors.Is(res.Err, submission.ErrNoMedia),
		errors.Is(res.Err, submission.ErrInvalidEscalation),
		errors.Is(res.Err, submission.ErrIncompleteSettings),
		errors.Is(res.Err, report.ErrUnknownIncidentType):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

type reportSummary struct {
	ReportID     string             `json:"reportId"`
	SubjectID    string             `json:"subjectId"`
	SubjectType  string             `json:"subjectTypeId"`
	ReviewerID   string             `json:"reviewerId"`
	IncidentType model.IncidentType `json:"incidentType"`
	IsTest       bool               `json:"isTest"`
	CreatedAt    time.Time          `json:"createdAt"`
}

type reportDetail struct {
	reportSummary
	Media           []model.MediaArtifact          `json:"media"`
	AdditionalFiles []model.AdditionalFileArtifact `json:"additionalFiles"`
	Threads         []model.ThreadArtifact         `json:"threads"`
	ReportXML       string                         `json:"reportXml"`
}

func summarize(r *model.StoredReport) reportSummary {
	return reportSummary{
		ReportID:     r.ReportID,
		SubjectID:    r.SubjectID,
		SubjectType:  r.SubjectTypeID,
		ReviewerID:   r.ReviewerID,
		IncidentType: r.IncidentType,
		IsTest:       r.IsTest,
		CreatedAt:    r.CreatedAt,
	}
}

// HandleListReports lists the org's production reports plus the reviewer's
// own test reports, newest first.
func (s *Server) HandleListReports(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.DefaultListLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	reports, err := s.reports.ListReports(r.Context(), orgID, q.Get("reviewer"), limit)
	if err != nil {
		s.logger.Error("listing reports", "org_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]reportSummary, 0, len(reports))
	for _, rpt := range reports {
		out = append(out, summarize(rpt))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetReport returns one report with its uploaded artifacts.
func (s *Server) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	reportID := chi.URLParam(r, "reportID")

	rpt, err := s.reports.GetReport(r.Context(), orgID, reportID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		s.logger.Error("getting report", "org_id", orgID, "report_id", reportID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, reportDetail{
		reportSummary:   summarize(rpt),
		Media:           rpt.Media,
		AdditionalFiles: rpt.AdditionalFiles,
		Threads:         rpt.Threads,
		ReportXML:       rpt.ReportXML,
	})
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
