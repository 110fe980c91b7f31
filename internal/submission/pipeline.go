// Package submission files one CyberTipline report end to end: it checks
// eligibility, assembles the incident from org enrichment, submits it,
// uploads every file, finishes the report, records it, and asks the org to
// preserve evidence.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/alert"
	"github.com/endharassment/cybertip-reporter/internal/cybertip"
	"github.com/endharassment/cybertip-reporter/internal/enrichment"
	"github.com/endharassment/cybertip-reporter/internal/model"
	"github.com/endharassment/cybertip-reporter/internal/report"
	"github.com/endharassment/cybertip-reporter/internal/retry"
	"github.com/endharassment/cybertip-reporter/internal/store"
	"github.com/google/uuid"
)

// Store is the persistence the pipeline needs.
type Store interface {
	GetOrgSettings(ctx context.Context, orgID string) (*model.OrgSettings, error)
	HasProductionReport(ctx context.Context, orgID, subjectID, subjectTypeID string) (bool, error)
	CreateReport(ctx context.Context, report *model.StoredReport) error
}

// Transport sends one request to the reporting web service.
type Transport interface {
	Send(ctx context.Context, creds cybertip.Credentials, body cybertip.Body, route cybertip.Route, isTest bool) (*cybertip.Response, error)
}

// Enricher fetches org-supplied data about the subject and media.
type Enricher interface {
	Fetch(ctx context.Context, orgID, endpoint string, subjects, media []model.Identifier) (*model.Enrichment, error)
}

// Preserver asks an org to preserve evidence after a production report.
type Preserver interface {
	Notify(ctx context.Context, orgID, endpoint string, subject model.Identifier, media []model.Identifier, reportID string) error
}

// Alerter is told about every failed submission.
type Alerter interface {
	Alert(ctx context.Context, f alert.Failure) error
}

// Locator resolves an IP address to an ISO country code.
type Locator interface {
	CountryCode(ctx context.Context, ip string) (string, error)
}

// Config tunes a Pipeline. Zero values fall back to defaults.
type Config struct {
	// MaxConcurrency bounds the uploads in flight within one phase.
	MaxConcurrency int
	// PrivateThreadTypeID is the thread type whose transcripts are labelled
	// as private conversations.
	PrivateThreadTypeID string
	// MediaClient downloads media and additional files from their hosts.
	MediaClient *http.Client
	// Retry governs each download+upload pair.
	Retry retry.Policy
}

const defaultMaxConcurrency = 4

// Pipeline runs submissions. It is safe for concurrent use.
type Pipeline struct {
	store     Store
	transport Transport
	enricher  Enricher
	preserver Preserver
	policy    OrgPolicy
	alerter   Alerter
	locator   Locator
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
	failures  *slog.Logger
}

// New creates a Pipeline.
func New(s Store, t Transport, e Enricher, p Preserver, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.MediaClient == nil {
		cfg.MediaClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     s,
		transport: t,
		enricher:  e,
		preserver: p,
		policy:    DenyList{},
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
		failures:  logger.With("channel", "cybertip_failures"),
	}
}

// SetPolicy configures which orgs may file reports.
func (p *Pipeline) SetPolicy(policy OrgPolicy) {
	p.policy = policy
}

// SetAlerter configures where failures are reported.
func (p *Pipeline) SetAlerter(a Alerter) {
	p.alerter = a
}

// SetLocator enables estimated location lookups for the subject.
func (p *Pipeline) SetLocator(l Locator) {
	p.locator = l
}

// SetFailureLogger overrides the logger failures are written to. It should
// not be sampled.
func (p *Pipeline) SetFailureLogger(l *slog.Logger) {
	p.failures = l
}

// run is the state of one submission.
type run struct {
	req    *model.ReportRequest
	isTest bool
	phase  Phase
	trace  []Phase

	settings   *model.OrgSettings
	creds      cybertip.Credentials
	enrichment *model.Enrichment
	// requested is the media sent to the enrichment endpoint.
	requested map[model.Identifier]bool
	doc       *report.Report

	reportID        string
	reportXML       string
	media           []model.MediaArtifact
	additionalFiles []model.AdditionalFileArtifact
	threads         []model.ThreadArtifact
}

// Submit files req. Every outcome, including failure, is returned in the
// Result; Submit never panics.
func (p *Pipeline) Submit(ctx context.Context, req *model.ReportRequest, isTest bool) (res Result) {
	if req == nil {
		return Result{Outcome: OutcomeFailure, Err: errors.New("nil report request")}
	}
	r := &run{req: req, isTest: isTest}
	defer func() {
		if v := recover(); v != nil {
			res = p.fail(ctx, r, fmt.Errorf("%w: %v", ErrPanic, v))
		}
	}()

	for phase := PhaseEligibility; phase != PhaseDone; phase = next(phase) {
		r.phase = phase
		r.trace = append(r.trace, phase)
		if phase == PhaseEligibility {
			outcome, err := p.checkEligibility(ctx, r)
			if err != nil {
				return p.fail(ctx, r, err)
			}
			if outcome != "" {
				p.logger.Info("submission stopped before submit",
					"org_id", req.OrgID,
					"subject_id", req.Subject.ID,
					"outcome", string(outcome),
				)
				return Result{Outcome: outcome, Phases: r.trace}
			}
			continue
		}
		if err := p.step(ctx, r, phase); err != nil {
			return p.fail(ctx, r, err)
		}
	}
	r.trace = append(r.trace, PhaseDone)

	p.logger.Info("cybertip report filed",
		"org_id", req.OrgID,
		"subject_id", req.Subject.ID,
		"report_id", r.reportID,
		"is_test", isTest,
		"media", len(r.media),
		"additional_files", len(r.additionalFiles),
		"threads", len(r.threads),
	)
	return Result{Outcome: OutcomeSuccess, ReportID: r.reportID, Phases: r.trace}
}

func (p *Pipeline) step(ctx context.Context, r *run, phase Phase) error {
	switch phase {
	case PhaseSubmit:
		return p.submit(ctx, r)
	case PhaseUploadMedia:
		return p.uploadMedia(ctx, r)
	case PhaseUploadAdditionalFiles:
		return p.uploadAdditionalFiles(ctx, r)
	case PhaseUploadThreads:
		return p.uploadThreads(ctx, r)
	case PhaseFinish:
		return p.finish(ctx, r)
	// The report is filed once finish returns. Record it and request
	// preservation even if the caller has gone away.
	case PhasePersist:
		return p.persist(context.WithoutCancel(ctx), r)
	case PhaseNotifyPreservation:
		p.notifyPreservation(context.WithoutCancel(ctx), r)
		return nil
	default:
		return fmt.Errorf("no handler for phase %s", phase)
	}
}

// checkEligibility runs every local check before the first network call,
// then fetches enrichment and assembles the incident document. A non-empty
// Outcome ends the run without error.
func (p *Pipeline) checkEligibility(ctx context.Context, r *run) (Outcome, error) {
	req := r.req

	settings, err := p.store.GetOrgSettings(ctx, req.OrgID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrReportingDisabled, req.OrgID)
	}
	if err != nil {
		return "", fmt.Errorf("loading settings for org %s: %w", req.OrgID, err)
	}
	if p.policy.Denied(req.OrgID) {
		return OutcomeUnsupportedOrg, nil
	}
	if len(req.Media) == 0 {
		return "", ErrNoMedia
	}
	if !settings.Complete() {
		return "", fmt.Errorf("%w: %s", ErrIncompleteSettings, req.OrgID)
	}
	if req.EscalateToHighPriority != nil {
		if _, err := report.ValidateEscalation(*req.EscalateToHighPriority); err != nil {
			return "", err
		}
	}
	if !r.isTest {
		dup, err := p.store.HasProductionReport(ctx, req.OrgID, req.Subject.ID, req.Subject.TypeID)
		if err != nil {
			return "", fmt.Errorf("checking for existing report: %w", err)
		}
		if dup {
			return "", fmt.Errorf("%w: %s/%s", ErrDuplicateReport, req.Subject.TypeID, req.Subject.ID)
		}
	}
	r.settings = settings
	r.creds = cybertip.Credentials{Username: settings.Username, Password: settings.Password}

	subject := req.Subject.Identifier()
	r.requested = make(map[model.Identifier]bool, len(req.Media))
	var media []model.Identifier
	for _, m := range req.Media {
		id := m.Identifier()
		if id == subject || r.requested[id] {
			continue
		}
		r.requested[id] = true
		media = append(media, id)
	}

	enr, err := p.enricher.Fetch(ctx, req.OrgID, settings.EnrichmentEndpoint, []model.Identifier{subject}, media)
	if errors.Is(err, enrichment.ErrAllMediaMissing) {
		return OutcomeAllMediaMissing, nil
	}
	if err != nil {
		return "", err
	}
	r.enrichment = enr

	doc, err := report.BuildIncident(req, enr, settings)
	if err != nil {
		return "", err
	}
	p.locate(ctx, doc, enr.User(subject))
	r.doc = doc
	return "", nil
}

// locate sets the estimated location from the subject's most recent IP
// address. Lookup failures leave the location unset.
func (p *Pipeline) locate(ctx context.Context, doc *report.Report, user *model.UserEnrichment) {
	if p.locator == nil || user == nil {
		return
	}
	ev := latestEvent(user.IPCaptureEvents)
	if ev == nil {
		return
	}
	cc, err := p.locator.CountryCode(ctx, ev.IPAddress)
	if err != nil {
		p.logger.Warn("estimating subject location", "ip", ev.IPAddress, "error", err)
		return
	}
	doc.PersonOrUserReported.EstimatedLocation = &report.EstimatedLocation{CountryCode: cc}
}

// latestEvent returns the event with the newest timestamp, or the first
// event when none carry a parseable one.
func latestEvent(events []model.IPCaptureEvent) *model.IPCaptureEvent {
	if len(events) == 0 {
		return nil
	}
	best := 0
	var bestAt time.Time
	for i, ev := range events {
		at, err := time.Parse(time.RFC3339Nano, ev.DateTime)
		if err != nil {
			continue
		}
		if bestAt.IsZero() || at.After(bestAt) {
			best, bestAt = i, at
		}
	}
	return &events[best]
}

func (p *Pipeline) submit(ctx context.Context, r *run) error {
	doc, err := report.Marshal(r.doc)
	if err != nil {
		return err
	}
	resp, err := p.transport.Send(ctx, r.creds, cybertip.XMLBody(doc), cybertip.RouteSubmit, r.isTest)
	if err != nil {
		return err
	}
	rr, err := accepted(resp, cybertip.RouteSubmit)
	if err != nil {
		return err
	}
	if rr.ReportID == "" {
		return fmt.Errorf("%w: %s returned no report id", cybertip.ErrMalformedResponse, cybertip.RouteSubmit)
	}
	r.reportID = rr.ReportID
	r.reportXML = string(doc)
	p.logger.Info("cybertip report opened",
		"org_id", r.req.OrgID,
		"report_id", r.reportID,
		"is_test", r.isTest,
	)
	return nil
}

func (p *Pipeline) finish(ctx context.Context, r *run) error {
	body := cybertip.FormBody{Fields: []cybertip.Field{{Name: "id", Value: r.reportID}}}
	resp, err := p.transport.Send(ctx, r.creds, body, cybertip.RouteFinish, r.isTest)
	if err != nil {
		return err
	}
	done, err := resp.DoneResponse()
	if err != nil {
		return fmt.Errorf("decoding %s response: %w", cybertip.RouteFinish, err)
	}
	p.logger.Debug("cybertip report finished",
		"report_id", r.reportID,
		"response_code", done.ResponseCode,
		"files", len(done.FileIDs),
	)
	return nil
}

func (p *Pipeline) persist(ctx context.Context, r *run) error {
	sr := &model.StoredReport{
		ID:              uuid.NewString(),
		OrgID:           r.req.OrgID,
		ReportID:        r.reportID,
		SubjectID:       r.req.Subject.ID,
		SubjectTypeID:   r.req.Subject.TypeID,
		ReviewerID:      r.req.ReviewerID,
		Media:           r.media,
		AdditionalFiles: r.additionalFiles,
		Threads:         r.threads,
		ReportXML:       r.reportXML,
		IncidentType:    r.req.IncidentType,
		IsTest:          r.isTest,
		CreatedAt:       p.now().UTC(),
	}
	if err := p.store.CreateReport(ctx, sr); err != nil {
		return fmt.Errorf("recording report %s: %w", r.reportID, err)
	}
	return nil
}

// notifyPreservation never fails the run: the report has already been
// filed and recorded.
func (p *Pipeline) notifyPreservation(ctx context.Context, r *run) {
	endpoint := r.settings.PreservationEndpoint
	if r.isTest || endpoint == "" || p.preserver == nil {
		return
	}
	media := make([]model.Identifier, 0, len(r.req.Media))
	for _, m := range r.req.Media {
		media = append(media, m.Identifier())
	}
	err := p.preserver.Notify(ctx, r.req.OrgID, endpoint, r.req.Subject.Identifier(), media, r.reportID)
	if err == nil {
		return
	}
	p.failures.Error("preservation request failed",
		"org_id", r.req.OrgID,
		"subject_id", r.req.Subject.ID,
		"report_id", r.reportID,
		"error", err,
	)
	p.sendAlert(ctx, r, err)
}

// fail is the single exit for failed runs.
func (p *Pipeline) fail(ctx context.Context, r *run, err error) Result {
	p.failures.Error("cybertip submission failed",
		"org_id", r.req.OrgID,
		"subject_id", r.req.Subject.ID,
		"report_id", r.reportID,
		"phase", r.phase.String(),
		"is_test", r.isTest,
		"error", err,
		"request", string(requestJSON(r.req)),
	)
	p.sendAlert(ctx, r, err)
	return Result{Outcome: OutcomeFailure, ReportID: r.reportID, Err: err, Phases: r.trace}
}

func (p *Pipeline) sendAlert(ctx context.Context, r *run, err error) {
	if p.alerter == nil {
		return
	}
	f := alert.Failure{
		OrgID:     r.req.OrgID,
		SubjectID: r.req.Subject.ID,
		ReportID:  r.reportID,
		Phase:     r.phase.String(),
		IsTest:    r.isTest,
		Err:       err,
		Request:   requestJSON(r.req),
		At:        p.now().UTC(),
	}
	if aerr := p.alerter.Alert(ctx, f); aerr != nil {
		p.logger.Warn("sending failure alert", "org_id", r.req.OrgID, "error", aerr)
	}
}

func requestJSON(req *model.ReportRequest) []byte {
	data, err := json.Marshal(req)
	if err != nil {
		return []byte(fmt.Sprintf("%q", err.Error()))
	}
	return data
}

// accepted decodes a reportResponse and requires a success code.
func accepted(resp *cybertip.Response, route cybertip.Route) (*cybertip.ReportResponse, error) {
	rr, err := resp.ReportResponse()
	if err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", route, err)
	}
	if !rr.OK() {
		return nil, fmt.Errorf("%w: %s returned code %s: %s", ErrRejected, route, rr.ResponseCode, rr.ResponseDescription)
	}
	return rr, nil
}
