package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// mockSendGridSender implements SendGridSender for tests.
type mockSendGridSender struct {
	lastEmail *mail.SGMailV3
	err       error
}

func (m *mockSendGridSender) Send(email *mail.SGMailV3) (*SendResult, error) {
	m.lastEmail = email
	if m.err != nil {
		return nil, m.err
	}
	return &SendResult{StatusCode: 202, MessageID: "msg-1"}, nil
}

var testConfig = Config{
	FromAddress: "noreply@example.com",
	FromName:    "Reporter",
	ToAddress:   "tns-oncall@example.com",
	ToName:      "Trust and Safety",
	SandboxMode: true,
}

func testFailure() Failure {
	return Failure{
		OrgID:     "org-1",
		SubjectID: "user-1",
		ReportID:  "4242",
		Phase:     "upload_media",
		Err:       errors.New("POST /upload: cybertip request failed: status 503"),
		Request:   []byte(`{"orgId":"org-1"}`),
		At:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAlert(t *testing.T) {
	mock := &mockSendGridSender{}
	if err := NewEmailAlerter(mock, testConfig).Alert(context.Background(), testFailure()); err != nil {
		t.Fatalf("Alert: %v", err)
	}

	email := mock.lastEmail
	if email == nil {
		t.Fatal("expected email to be sent")
	}
	if email.Subject != "[CyberTipline production] upload_media failed for org org-1" {
		t.Errorf("Subject = %q", email.Subject)
	}
	if len(email.Attachments) != 1 || email.Attachments[0].Filename != "report-request.json" {
		t.Errorf("Attachments = %+v", email.Attachments)
	}
	if email.MailSettings == nil || email.MailSettings.SandboxMode == nil ||
		email.MailSettings.SandboxMode.Enable == nil || !*email.MailSettings.SandboxMode.Enable {
		t.Error("expected sandbox mode to be enabled")
	}
}

func TestAlertSendError(t *testing.T) {
	mock := &mockSendGridSender{err: fmt.Errorf("connection refused")}
	err := NewEmailAlerter(mock, testConfig).Alert(context.Background(), testFailure())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v, want to contain 'connection refused'", err)
	}
}

func TestBody(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Failure)
		contains []string
		excludes []string
	}{
		{
			name:     "after submit",
			mutate:   func(*Failure) {},
			contains: []string{"Organization: org-1", "CyberTipline report ID: 4242", "status 503", "finished or re-filed"},
		},
		{
			name:     "before submit",
			mutate:   func(f *Failure) { f.ReportID = "" },
			contains: []string{"Reported user: user-1"},
			excludes: []string{"report ID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFailure()
			tt.mutate(&f)
			body := Body(f)
			for _, s := range tt.contains {
				if !strings.Contains(body, s) {
					t.Errorf("body missing %q:\n%s", s, body)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(body, s) {
					t.Errorf("body contains %q:\n%s", s, body)
				}
			}
		})
	}
}
