package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/endharassment/cybertip-reporter/internal/model"
)

// MaxTextLength bounds the escalation note and terms of service.
const MaxTextLength = 3000

// dateTimeFormat matches the ISO-8601 timestamps the service expects.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// WebPageFallbackURL is reported for WEB_PAGE incidents when the org has no
// more-info URL configured.
const WebPageFallbackURL = "Not specified"

var (
	ErrInvalidEscalation   = errors.New("escalation note must be non-blank and at most 3000 characters")
	ErrUnknownIncidentType = errors.New("unknown incident type")
	ErrNoMedia             = errors.New("report has no media")
	ErrMissingUser         = errors.New("enrichment has no record for the reported user")
)

// ValidateEscalation trims note and checks it is 1-3000 characters long.
func ValidateEscalation(note string) (string, error) {
	trimmed := strings.TrimSpace(note)
	if n := utf8.RuneCountInString(trimmed); n == 0 || n > MaxTextLength {
		return "", ErrInvalidEscalation
	}
	return trimmed, nil
}

// BuildInternetDetails returns the internet details for the org's default
// channel type, or nil if the type is blank or not recognized.
func BuildInternetDetails(settingType, moreInfoURL string) *InternetDetails {
	switch model.InternetDetailType(strings.TrimSpace(settingType)) {
	case model.InternetWebPage:
		url := strings.TrimSpace(moreInfoURL)
		if url == "" {
			url = WebPageFallbackURL
		}
		return &InternetDetails{WebPage: &WebPageIncident{URL: url}}
	case model.InternetEmail:
		return &InternetDetails{Email: &Marker{}}
	case model.InternetNewsgroup:
		return &InternetDetails{Newsgroup: &Marker{}}
	case model.InternetChatIM:
		return &InternetDetails{ChatIM: &Marker{}}
	case model.InternetOnlineGame:
		return &InternetDetails{OnlineGaming: &Marker{}}
	case model.InternetCellPhone:
		return &InternetDetails{CellPhone: &Marker{}}
	case model.InternetNonInternet:
		return &InternetDetails{NonInternet: &Marker{}}
	case model.InternetPeerToPeer:
		return &InternetDetails{PeerToPeer: &Marker{}}
	default:
		return nil
	}
}

// BuildIncident assembles the incident document for req. The enrichment must
// contain a record for the reported user.
func BuildIncident(req *model.ReportRequest, enr *model.Enrichment, settings *model.OrgSettings) (*Report, error) {
	if !req.IncidentType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIncidentType, req.IncidentType)
	}
	incidentAt, ok := req.IncidentTime()
	if !ok {
		return nil, ErrNoMedia
	}

	summary := IncidentSummary{
		IncidentType:     string(req.IncidentType),
		IncidentDateTime: FormatTime(incidentAt),
	}
	if req.EscalateToHighPriority != nil {
		note, err := ValidateEscalation(*req.EscalateToHighPriority)
		if err != nil {
			return nil, err
		}
		summary.EscalateToHighPriority = note
	}

	user := enr.User(req.Subject.Identifier())
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingUser, req.Subject.ID)
	}

	doc := &Report{
		IncidentSummary: summary,
		InternetDetails: BuildInternetDetails(settings.DefaultInternetDetailType, settings.MoreInfoURL),
		Reporter:        buildReporter(settings),
		PersonOrUserReported: &PersonOrUserReported{
			Person:          Person{Emails: emailAddresses(user.Emails)},
			ESPIdentifier:   req.Subject.ID,
			ESPService:      settings.CompanyTemplate,
			ScreenName:      user.ScreenName,
			IPCaptureEvents: ipCaptureEvents(user.IPCaptureEvents),
		},
		AdditionalInfo: strings.TrimSpace(enr.AdditionalInfo),
	}
	if req.Subject.DisplayName != "" {
		doc.PersonOrUserReported.DisplayNames = []string{req.Subject.DisplayName}
	}
	return doc, nil
}

// FormatTime renders t the way the service expects timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(dateTimeFormat)
}

func buildReporter(s *model.OrgSettings) Reporter {
	r := Reporter{
		// Always present, even when the org has no contact email on file.
		ReportingPerson: Person{Emails: []EmailAddress{{Address: s.ContactEmail}}},
		CompanyTemplate: s.CompanyTemplate,
		LegalURL:        s.LegalURL,
	}
	if tos := strings.TrimSpace(s.TermsOfService); tos != "" && utf8.RuneCountInString(tos) <= MaxTextLength {
		r.TermsOfService = tos
	}

	c := model.ContactPerson{
		Email:     strings.TrimSpace(s.Contact.Email),
		FirstName: strings.TrimSpace(s.Contact.FirstName),
		LastName:  strings.TrimSpace(s.Contact.LastName),
		Phone:     strings.TrimSpace(s.Contact.Phone),
	}
	if c != (model.ContactPerson{}) {
		p := &Person{FirstName: c.FirstName, LastName: c.LastName, Phone: c.Phone}
		if c.Email != "" {
			p.Emails = []EmailAddress{{Address: c.Email}}
		}
		r.ContactPerson = p
	}
	return r
}

func emailAddresses(in []model.Email) []EmailAddress {
	out := make([]EmailAddress, 0, len(in))
	for _, e := range in {
		out = append(out, EmailAddress{
			Address:          e.Address,
			Type:             string(e.Type),
			Verified:         e.Verified,
			VerificationDate: e.VerificationDate,
		})
	}
	return out
}

// ipCaptureEvents copies events in the order received.
func ipCaptureEvents(in []model.IPCaptureEvent) []IPCaptureEvent {
	if len(in) == 0 {
		return nil
	}
	out := make([]IPCaptureEvent, len(in))
	for i, ev := range in {
		out[i] = IPCaptureEvent{
			IPAddress:     ev.IPAddress,
			EventName:     string(ev.EventName),
			DateTime:      ev.DateTime,
			PossibleProxy: ev.PossibleProxy,
			Port:          ev.Port,
		}
	}
	return out
}
