// Package alert emails the trust and safety team when a report could not be
// filed, so that every failed submission gets a human look.
package alert

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Failure describes one failed or partially failed submission.
type Failure struct {
	OrgID     string
	SubjectID string
	ReportID  string // empty if /submit never succeeded
	Phase     string
	IsTest    bool
	Err       error
	// Request is the original report request, JSON encoded.
	Request []byte
	At      time.Time
}

// SendGridSender is the interface for sending emails via SendGrid.
type SendGridSender interface {
	Send(email *mail.SGMailV3) (*SendResult, error)
}

// SendResult contains the result of sending an email.
type SendResult struct {
	StatusCode int
	MessageID  string
}

// RealSendGridSender sends emails via the SendGrid API.
type RealSendGridSender struct {
	APIKey string
}

// Send dispatches an email through the SendGrid API.
func (s *RealSendGridSender) Send(email *mail.SGMailV3) (*SendResult, error) {
	client := sendgrid.NewSendClient(s.APIKey)
	resp, err := client.Send(email)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	messageID := ""
	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	return &SendResult{StatusCode: resp.StatusCode, MessageID: messageID}, nil
}

// Config holds the alert email envelope.
type Config struct {
	FromAddress string
	FromName    string
	ToAddress   string
	ToName      string
	// SandboxMode when true prevents actual email delivery via SendGrid.
	SandboxMode bool
}

// EmailAlerter sends one email per failure.
type EmailAlerter struct {
	sender SendGridSender
	cfg    Config
}

func NewEmailAlerter(sender SendGridSender, cfg Config) *EmailAlerter {
	return &EmailAlerter{sender: sender, cfg: cfg}
}

// Alert emails f to the configured address, attaching the original request.
func (a *EmailAlerter) Alert(_ context.Context, f Failure) error {
	from := mail.NewEmail(a.cfg.FromName, a.cfg.FromAddress)
	to := mail.NewEmail(a.cfg.ToName, a.cfg.ToAddress)
	message := mail.NewSingleEmail(from, Subject(f), to, Body(f), "")

	if len(f.Request) > 0 {
		attachment := mail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(f.Request))
		attachment.SetType("application/json")
		attachment.SetFilename("report-request.json")
		attachment.SetDisposition("attachment")
		message.AddAttachment(attachment)
	}

	if a.cfg.SandboxMode {
		settings := mail.NewMailSettings()
		settings.SetSandboxMode(mail.NewSetting(true))
		message.SetMailSettings(settings)
	}

	if _, err := a.sender.Send(message); err != nil {
		return fmt.Errorf("sending failure alert for org %s: %w", f.OrgID, err)
	}
	return nil
}

// Subject returns the email subject line for f.
func Subject(f Failure) string {
	env := "production"
	if f.IsTest {
		env = "test"
	}
	return fmt.Sprintf("[CyberTipline %s] %s failed for org %s", env, f.Phase, f.OrgID)
}

// Body returns the plain-text email body for f.
func Body(f Failure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A CyberTipline submission did not complete.\n\n")
	fmt.Fprintf(&b, "Organization: %s\n", f.OrgID)
	fmt.Fprintf(&b, "Reported user: %s\n", f.SubjectID)
	if f.ReportID != "" {
		fmt.Fprintf(&b, "CyberTipline report ID: %s\n", f.ReportID)
	}
	fmt.Fprintf(&b, "Phase: %s\n", f.Phase)
	fmt.Fprintf(&b, "Test mode: %t\n", f.IsTest)
	if !f.At.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", f.At.UTC().Format(time.RFC3339))
	}
	if f.Err != nil {
		fmt.Fprintf(&b, "\nError:\n%s\n", f.Err)
	}
	if f.ReportID != "" {
		b.WriteString("\nThe report ID above was assigned by the CyberTipline. Check whether it needs to be finished or re-filed by hand.\n")
	}
	return b.String()
}
