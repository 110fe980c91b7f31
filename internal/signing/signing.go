// Package signing signs outbound requests to org-operated endpoints so the
// org can verify they came from us.
package signing

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Header carries the base64 signature of the request body.
const Header = "coop-signature"

// Signer signs a request body on behalf of an org.
type Signer interface {
	Sign(ctx context.Context, orgID string, body []byte) ([]byte, error)
}

var ErrNoKey = errors.New("no signing key for org")

// Ed25519Signer signs with a per-org key, falling back to a default key.
type Ed25519Signer struct {
	def  ed25519.PrivateKey
	keys map[string]ed25519.PrivateKey
}

// NewEd25519Signer returns a signer whose default key is derived from seed.
// A nil seed leaves the signer without a default key.
func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	s := &Ed25519Signer{keys: make(map[string]ed25519.PrivateKey)}
	if seed != nil {
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		s.def = ed25519.NewKeyFromSeed(seed)
	}
	return s, nil
}

// SetOrgKey installs a key used only for orgID.
func (s *Ed25519Signer) SetOrgKey(orgID string, key ed25519.PrivateKey) {
	s.keys[orgID] = key
}

// PublicKey returns the verification key for orgID.
func (s *Ed25519Signer) PublicKey(orgID string) (ed25519.PublicKey, error) {
	key, err := s.key(orgID)
	if err != nil {
		return nil, err
	}
	return key.Public().(ed25519.PublicKey), nil
}

func (s *Ed25519Signer) Sign(_ context.Context, orgID string, body []byte) ([]byte, error) {
	key, err := s.key(orgID)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(key, body), nil
}

func (s *Ed25519Signer) key(orgID string) (ed25519.PrivateKey, error) {
	if k, ok := s.keys[orgID]; ok {
		return k, nil
	}
	if s.def == nil {
		return nil, fmt.Errorf("%w %s", ErrNoKey, orgID)
	}
	return s.def, nil
}

// Apply sets the signature header on req. A signing failure is logged and
// the request goes out unsigned; a nil signer leaves req untouched.
func Apply(ctx context.Context, req *http.Request, signer Signer, orgID string, body []byte, logger *slog.Logger) {
	if signer == nil {
		return
	}
	sig, err := signer.Sign(ctx, orgID, body)
	if err != nil {
		logger.Warn("signing request failed; sending unsigned",
			"org_id", orgID,
			"url", req.URL.String(),
			"error", err,
		)
		return
	}
	req.Header.Set(Header, base64.StdEncoding.EncodeToString(sig))
}
