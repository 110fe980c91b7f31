// Package enrichment fetches org-supplied facts about the reported user and
// media (screen names, emails, IP history, file hashes) from the endpoint the
// org configured for that purpose.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/model"
	"github.com/endharassment/cybertip-reporter/internal/retry"
	"github.com/endharassment/cybertip-reporter/internal/signing"
)

const maxResponseBytes = 10 << 20 // 10 MiB

var (
	// ErrAllMediaMissing means the org flagged every reported media item as
	// no longer available. It is an expected outcome, not a failure.
	ErrAllMediaMissing = errors.New("all reported media are missing")

	ErrIncompleteCoverage = errors.New("enrichment did not cover every requested item")
	ErrInvalidResponse    = errors.New("enrichment response failed validation")
	ErrRequestFailed      = errors.New("enrichment request failed")
)

// Gateway calls org enrichment endpoints.
type Gateway struct {
	http   *http.Client
	signer signing.Signer
	retry  retry.Policy
	logger *slog.Logger
}

// NewGateway returns a Gateway. client and signer may be nil.
func NewGateway(client *http.Client, signer signing.Signer, policy retry.Policy, logger *slog.Logger) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if policy.MaxAttempts == 0 {
		policy = retry.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{http: client, signer: signer, retry: policy, logger: logger}
}

type fetchRequest struct {
	Users []model.Identifier `json:"users"`
	Media []model.Identifier `json:"media"`
}

// Fetch returns enrichment for subjects and media. With no endpoint it
// synthesizes a minimal record so reporting can proceed without one.
// Otherwise every requested item must be present in the response. Media the
// org marks missing are dropped; if all of them are missing Fetch returns
// ErrAllMediaMissing.
func (g *Gateway) Fetch(ctx context.Context, orgID, endpoint string, subjects, media []model.Identifier) (*model.Enrichment, error) {
	if endpoint == "" {
		return synthesize(subjects, media), nil
	}

	body, err := json.Marshal(fetchRequest{Users: nonNil(subjects), Media: nonNil(media)})
	if err != nil {
		return nil, fmt.Errorf("encoding enrichment request: %w", err)
	}

	var resp *wireResponse
	err = g.retry.Do(ctx, func(ctx context.Context) error {
		r, err := g.post(ctx, orgID, endpoint, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching enrichment for org %s: %w", orgID, err)
	}

	if err := checkCoverage(resp, subjects, media); err != nil {
		return nil, err
	}
	if resp.allMediaMissing() {
		return nil, ErrAllMediaMissing
	}
	return resp.toModel(), nil
}

func (g *Gateway) post(ctx context.Context, orgID, endpoint string, body []byte) (*wireResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	signing.Apply(ctx, req, g.signer, orgID, body, g.logger)

	httpResp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading enrichment response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, httpResp.StatusCode)
	}

	var wr wireResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	if err := wr.validate(); err != nil {
		return nil, retry.Permanent(err)
	}
	return &wr, nil
}

func synthesize(subjects, media []model.Identifier) *model.Enrichment {
	enr := &model.Enrichment{}
	for _, s := range subjects {
		enr.Users = append(enr.Users, model.UserEnrichment{
			ID:         s.ID,
			TypeID:     s.TypeID,
			ScreenName: s.ID,
		})
	}
	for _, m := range media {
		enr.Media = append(enr.Media, model.MediaEnrichment{ID: m.ID, TypeID: m.TypeID})
	}
	return enr
}

func checkCoverage(resp *wireResponse, subjects, media []model.Identifier) error {
	users := make(map[model.Identifier]bool, len(*resp.Users))
	for _, u := range *resp.Users {
		users[model.Identifier{ID: *u.ID, TypeID: *u.TypeID}] = true
	}
	for _, s := range subjects {
		if !users[s] {
			return fmt.Errorf("%w: user %s/%s", ErrIncompleteCoverage, s.TypeID, s.ID)
		}
	}

	got := make(map[model.Identifier]bool, len(resp.Media))
	for _, m := range resp.Media {
		got[model.Identifier{ID: *m.ID, TypeID: *m.TypeID}] = true
	}
	for _, m := range media {
		if !got[m] {
			return fmt.Errorf("%w: media %s/%s", ErrIncompleteCoverage, m.TypeID, m.ID)
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
