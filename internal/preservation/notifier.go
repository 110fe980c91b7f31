// Package preservation tells an org that evidence about a reported user must
// be retained past its normal retention window.
package preservation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/model"
	"github.com/endharassment/cybertip-reporter/internal/retry"
	"github.com/endharassment/cybertip-reporter/internal/signing"
)

var ErrRequestFailed = errors.New("preservation request failed")

// Request is the body posted to the org's preservation endpoint.
type Request struct {
	User          model.Identifier   `json:"user"`
	ReportedMedia []model.Identifier `json:"reportedMedia"`
	ReportID      ReportID           `json:"reportId"`
}

// ReportID encodes as a JSON number when it is an integer and as a string
// otherwise.
type ReportID string

func (id ReportID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return strconv.AppendInt(nil, n, 10), nil
	}
	return json.Marshal(string(id))
}

// Notifier posts signed preservation requests.
type Notifier struct {
	http   *http.Client
	signer signing.Signer
	retry  retry.Policy
	logger *slog.Logger
}

// NewNotifier returns a Notifier. client and signer may be nil.
func NewNotifier(client *http.Client, signer signing.Signer, policy retry.Policy, logger *slog.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if policy.MaxAttempts == 0 {
		policy = retry.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{http: client, signer: signer, retry: policy, logger: logger}
}

// Notify asks the org at endpoint to preserve evidence for subject. The
// response body is discarded.
func (n *Notifier) Notify(ctx context.Context, orgID, endpoint string, subject model.Identifier, media []model.Identifier, reportID string) error {
	if media == nil {
		media = []model.Identifier{}
	}
	body, err := json.Marshal(Request{User: subject, ReportedMedia: media, ReportID: ReportID(reportID)})
	if err != nil {
		return fmt.Errorf("encoding preservation request: %w", err)
	}

	err = n.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		signing.Apply(ctx, req, n.signer, orgID, body, n.logger)

		resp, err := n.http.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("notifying preservation endpoint for org %s: %w", orgID, err)
	}
	n.logger.Info("preservation requested",
		"org_id", orgID,
		"subject_id", subject.ID,
		"report_id", reportID,
	)
	return nil
}
