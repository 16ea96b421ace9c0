// Package session moves tokens between the client and the server: request
// extraction, cross-subdomain cookies and the logout redirect allow-list.
package session

import (
	"net/http"
	"strings"
)

const (
	// TokenCookie is the host-only cookie read by the auth gate.
	TokenCookie = "token"
	// SSOTokenCookie carries the raw token to sibling subdomains.
	SSOTokenCookie = "sso_token"
	// SSOUserCookie is readable by client scripts for presence checks.
	SSOUserCookie = "sso_user"
)

// ExtractToken reads the token cookie first, then an Authorization bearer header.
func ExtractToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(TokenCookie); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, true
		}
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
