// Package turnstile verifies Cloudflare Turnstile challenge tokens.
package turnstile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mategroup/sso/config"
)

const defaultTimeout = 10 * time.Second

// ErrNotConfigured is returned when a token arrives but no secret key is set.
var ErrNotConfigured = errors.New("turnstile secret key not configured")

// Verifier calls the siteverify endpoint.
type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

func NewVerifier(cfg config.TurnstileConfig) *Verifier {
	return &Verifier{
		secret:    strings.TrimSpace(cfg.SecretKey),
		verifyURL: cfg.VerifyURL,
		client:    &http.Client{Timeout: defaultTimeout},
	}
}

type verifyRequest struct {
	Secret   string `json:"secret"`
	Response string `json:"response"`
	RemoteIP string `json:"remoteip,omitempty"`
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify reports whether the challenge passed. An error means the check could
// not be performed and the request must not proceed.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v.secret == "" {
		return false, ErrNotConfigured
	}

	body, err := json.Marshal(verifyRequest{Secret: v.secret, Response: token, RemoteIP: remoteIP})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("turnstile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("turnstile status %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode turnstile response: %w", err)
	}
	return out.Success, nil
}
