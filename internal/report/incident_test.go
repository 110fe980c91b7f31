package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/model"
)

func strPtr(s string) *string { return &s }

func testSettings() *model.OrgSettings {
	return &model.OrgSettings{
		OrgID:                     "org-1",
		CompanyTemplate:           "Example ESP",
		LegalURL:                  "https://example.com/legal",
		ContactEmail:              "safety@example.com",
		MoreInfoURL:               "https://example.com/more",
		DefaultInternetDetailType: "WEB_PAGE",
	}
}

func testRequest() *model.ReportRequest {
	return &model.ReportRequest{
		OrgID:   "org-1",
		Subject: model.Subject{ID: "user-1", TypeID: "user-type", DisplayName: "Suspect"},
		Media: []model.Media{
			{ID: "m1", TypeID: "img", URL: "https://cdn.example.com/m1", CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
			{ID: "m2", TypeID: "img", URL: "https://cdn.example.com/m2", CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		},
		ReviewerID:   "reviewer-1",
		IncidentType: model.IncidentChildPornography,
	}
}

func testEnrichment() *model.Enrichment {
	verified := true
	return &model.Enrichment{
		Users: []model.UserEnrichment{{
			ID:         "user-1",
			TypeID:     "user-type",
			ScreenName: "suspect_01",
			Emails:     []model.Email{{Address: "suspect@example.net", Type: model.EmailHome, Verified: &verified}},
			IPCaptureEvents: []model.IPCaptureEvent{
				{IPAddress: "198.51.100.7", EventName: model.EventLogin},
				{IPAddress: "198.51.100.3", EventName: model.EventRegistration, Port: 8080},
			},
		}},
	}
}

func TestValidateEscalation(t *testing.T) {
	tests := []struct {
		name    string
		note    string
		want    string
		wantErr bool
	}{
		{name: "empty", note: "", wantErr: true},
		{name: "blank", note: "   \n\t", wantErr: true},
		{name: "trimmed", note: "  urgent  ", want: "urgent"},
		{name: "exactly 3000", note: strings.Repeat("a", 3000), want: strings.Repeat("a", 3000)},
		{name: "3000 plus padding", note: " " + strings.Repeat("a", 3000) + " ", want: strings.Repeat("a", 3000)},
		{name: "3001", note: strings.Repeat("a", 3001), wantErr: true},
		{name: "3000 multibyte runes", note: strings.Repeat("é", 3000), want: strings.Repeat("é", 3000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateEscalation(tt.note)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEscalation) {
					t.Errorf("err = %v, want ErrInvalidEscalation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d chars, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestBuildIncident(t *testing.T) {
	req := testRequest()
	req.EscalateToHighPriority = strPtr("  child in immediate danger ")
	enr := testEnrichment()
	enr.AdditionalInfo = "Account created two days before upload."

	doc, err := BuildIncident(req, enr, testSettings())
	if err != nil {
		t.Fatalf("BuildIncident: %v", err)
	}
	out, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	xml := string(out)

	wantFragments := []string{
		`<report><incidentSummary><incidentType>Child Pornography (possession, manufacture, and distribution)</incidentType>` +
			`<escalateToHighPriority>child in immediate danger</escalateToHighPriority>` +
			`<incidentDateTime>2026-03-01T12:00:00.000Z</incidentDateTime></incidentSummary>`,
		`<internetDetails><webPageIncident><url>https://example.com/more</url></webPageIncident></internetDetails>`,
		`<reporter><reportingPerson><email>safety@example.com</email></reportingPerson>` +
			`<companyTemplate>Example ESP</companyTemplate><legalURL>https://example.com/legal</legalURL></reporter>`,
		`<personOrUserReportedPerson><email type="Home" verified="true">suspect@example.net</email></personOrUserReportedPerson>`,
		`<espIdentifier>user-1</espIdentifier><espService>Example ESP</espService><screenName>suspect_01</screenName><displayName>Suspect</displayName>`,
		`<ipCaptureEvent><ipAddress>198.51.100.7</ipAddress><eventName>Login</eventName></ipCaptureEvent>` +
			`<ipCaptureEvent><ipAddress>198.51.100.3</ipAddress><eventName>Registration</eventName><port>8080</port></ipCaptureEvent>`,
		`<additionalInfo>Account created two days before upload.</additionalInfo></report>`,
	}
	for _, frag := range wantFragments {
		if !strings.Contains(xml, frag) {
			t.Errorf("XML missing fragment:\n%s\n\ngot:\n%s", frag, xml)
		}
	}
	if strings.Contains(xml, "contactPerson") || strings.Contains(xml, "termsOfService") {
		t.Errorf("unexpected optional reporter fields: %s", xml)
	}
}

func TestBuildIncidentErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ReportRequest, *model.Enrichment)
		want   error
	}{
		{
			name:   "unknown incident type",
			mutate: func(r *model.ReportRequest, _ *model.Enrichment) { r.IncidentType = "Spam" },
			want:   ErrUnknownIncidentType,
		},
		{
			name:   "no media",
			mutate: func(r *model.ReportRequest, _ *model.Enrichment) { r.Media = nil },
			want:   ErrNoMedia,
		},
		{
			name: "escalation note too long",
			mutate: func(r *model.ReportRequest, _ *model.Enrichment) {
				r.EscalateToHighPriority = strPtr(strings.Repeat("x", 3001))
			},
			want: ErrInvalidEscalation,
		},
		{
			name:   "blank escalation note",
			mutate: func(r *model.ReportRequest, _ *model.Enrichment) { r.EscalateToHighPriority = strPtr(" ") },
			want:   ErrInvalidEscalation,
		},
		{
			name:   "user missing from enrichment",
			mutate: func(_ *model.ReportRequest, e *model.Enrichment) { e.Users[0].TypeID = "other-type" },
			want:   ErrMissingUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, enr := testRequest(), testEnrichment()
			tt.mutate(req, enr)
			_, err := BuildIncident(req, enr, testSettings())
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuildIncidentMaxEscalation(t *testing.T) {
	req := testRequest()
	note := strings.Repeat("x", 3000)
	req.EscalateToHighPriority = &note

	doc, err := BuildIncident(req, testEnrichment(), testSettings())
	if err != nil {
		t.Fatalf("BuildIncident: %v", err)
	}
	if doc.IncidentSummary.EscalateToHighPriority != note {
		t.Errorf("escalation note length = %d, want 3000", len(doc.IncidentSummary.EscalateToHighPriority))
	}
}

func TestBuildInternetDetails(t *testing.T) {
	tests := []struct {
		name        string
		setting     string
		moreInfoURL string
		check       func(*InternetDetails) bool
	}{
		{name: "blank", setting: "", check: func(d *InternetDetails) bool { return d == nil }},
		{name: "unknown", setting: "CARRIER_PIGEON", check: func(d *InternetDetails) bool { return d == nil }},
		{name: "lowercase is unknown", setting: "web_page", check: func(d *InternetDetails) bool { return d == nil }},
		{
			name: "web page with url", setting: "WEB_PAGE", moreInfoURL: " https://example.com/info ",
			check: func(d *InternetDetails) bool { return d != nil && d.WebPage != nil && d.WebPage.URL == "https://example.com/info" },
		},
		{
			name: "web page without url", setting: "WEB_PAGE",
			check: func(d *InternetDetails) bool { return d != nil && d.WebPage != nil && d.WebPage.URL == WebPageFallbackURL },
		},
		{name: "email", setting: "EMAIL", check: func(d *InternetDetails) bool { return d != nil && d.Email != nil && d.WebPage == nil }},
		{name: "padded chat", setting: "  CHAT_IM ", check: func(d *InternetDetails) bool { return d != nil && d.ChatIM != nil }},
		{name: "newsgroup", setting: "NEWSGROUP", check: func(d *InternetDetails) bool { return d != nil && d.Newsgroup != nil }},
		{name: "gaming", setting: "ONLINE_GAMING", check: func(d *InternetDetails) bool { return d != nil && d.OnlineGaming != nil }},
		{name: "cell phone", setting: "CELL_PHONE", check: func(d *InternetDetails) bool { return d != nil && d.CellPhone != nil }},
		{name: "non internet", setting: "NON_INTERNET", check: func(d *InternetDetails) bool { return d != nil && d.NonInternet != nil }},
		{name: "peer to peer", setting: "PEER_TO_PEER", check: func(d *InternetDetails) bool { return d != nil && d.PeerToPeer != nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildInternetDetails(tt.setting, tt.moreInfoURL)
			if !tt.check(got) {
				t.Errorf("BuildInternetDetails(%q, %q) = %+v", tt.setting, tt.moreInfoURL, got)
			}
		})
	}
}

func TestPeerToPeerElementName(t *testing.T) {
	s := testSettings()
	s.DefaultInternetDetailType = "PEER_TO_PEER"
	doc, err := BuildIncident(testRequest(), testEnrichment(), s)
	if err != nil {
		t.Fatalf("BuildIncident: %v", err)
	}
	out, _ := Marshal(doc)
	if !strings.Contains(string(out), "<internetDetails><peer2peerIncident></peer2peerIncident></internetDetails>") {
		t.Errorf("got %s", out)
	}
}

func TestReporterOptionalFields(t *testing.T) {
	tests := []struct {
		name        string
		tos         string
		contact     model.ContactPerson
		wantTOS     string
		wantContact *Person
	}{
		{name: "nothing optional"},
		{name: "blank terms", tos: "   "},
		{name: "terms trimmed", tos: "  Be nice. ", wantTOS: "Be nice."},
		{name: "terms at limit", tos: strings.Repeat("t", 3000), wantTOS: strings.Repeat("t", 3000)},
		{name: "terms over limit", tos: strings.Repeat("t", 3001)},
		{name: "blank contact", contact: model.ContactPerson{FirstName: "  ", Phone: " "}},
		{
			name:        "phone only",
			contact:     model.ContactPerson{Phone: " 555-0100 "},
			wantContact: &Person{Phone: "555-0100"},
		},
		{
			name:        "full contact",
			contact:     model.ContactPerson{Email: "pat@example.com", FirstName: "Pat", LastName: "Doe"},
			wantContact: &Person{FirstName: "Pat", LastName: "Doe", Emails: []EmailAddress{{Address: "pat@example.com"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			s.TermsOfService = tt.tos
			s.Contact = tt.contact
			r := buildReporter(s)
			if r.TermsOfService != tt.wantTOS {
				t.Errorf("TermsOfService length = %d, want %d", len(r.TermsOfService), len(tt.wantTOS))
			}
			if (r.ContactPerson == nil) != (tt.wantContact == nil) {
				t.Fatalf("ContactPerson = %+v, want %+v", r.ContactPerson, tt.wantContact)
			}
			if tt.wantContact == nil {
				return
			}
			got, want := r.ContactPerson, tt.wantContact
			if got.FirstName != want.FirstName || got.LastName != want.LastName || got.Phone != want.Phone || len(got.Emails) != len(want.Emails) {
				t.Errorf("ContactPerson = %+v, want %+v", got, want)
			}
		})
	}
}
