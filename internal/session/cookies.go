package session

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	DomainLastTwoLabels = "last-two-labels"
	DomainPublicSuffix  = "public-suffix"

	tokenMaxAge = 24 * time.Hour
	ssoMaxAge   = time.Hour
)

// UserInfo is the companion payload stored in the sso_user cookie.
type UserInfo struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Transport writes and clears the session cookies.
type Transport struct {
	secure         bool
	domainStrategy string
}

func NewTransport(secure bool, domainStrategy string) *Transport {
	if domainStrategy == "" {
		domainStrategy = DomainLastTwoLabels
	}
	return &Transport{secure: secure, domainStrategy: domainStrategy}
}

// CookieDomain returns the shared parent domain for host, or "" for a host-only cookie.
//
// The default strategy keeps the last two labels, which is wrong for multi-part
// public suffixes: sso.example.co.uk yields .co.uk and browsers reject it.
// The public-suffix strategy resolves eTLD+1 instead.
func (t *Transport) CookieDomain(host string) string {
	host = stripPort(strings.ToLower(strings.TrimSpace(host)))
	host = strings.TrimSuffix(host, ".")
	if host == "" || strings.Contains(host, "localhost") || net.ParseIP(host) != nil {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ""
	}

	if t.domainStrategy == DomainPublicSuffix {
		root, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil {
			return ""
		}
		return "." + root
	}
	return "." + strings.Join(labels[len(labels)-2:], ".")
}

// Issue sets the backend token cookie plus the two domain-scoped SSO cookies.
func (t *Transport) Issue(w http.ResponseWriter, r *http.Request, token string, info UserInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	domain := t.CookieDomain(r.Host)

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokenMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     SSOTokenCookie,
		Value:    token,
		Path:     "/",
		Domain:   domain,
		MaxAge:   int(ssoMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     SSOUserCookie,
		Value:    url.PathEscape(string(payload)),
		Path:     "/",
		Domain:   domain,
		MaxAge:   int(ssoMaxAge.Seconds()),
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires every session cookie. Safe to call without a session.
func (t *Transport) Clear(w http.ResponseWriter, r *http.Request) {
	domain := t.CookieDomain(r.Host)

	expire(w, TokenCookie, "", true, t.secure)
	expire(w, SSOTokenCookie, domain, true, t.secure)
	expire(w, SSOUserCookie, domain, false, t.secure)
}

func expire(w http.ResponseWriter, name, domain string, httpOnly, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: httpOnly,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(host, "[]")
}
