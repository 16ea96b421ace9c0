package session

import "strings"

const DefaultRedirect = "https://mategroup.id"

// RedirectPolicy resolves post-logout redirect targets against an allow-list.
type RedirectPolicy struct {
	allowed []string
}

func NewRedirectPolicy(allowed []string) *RedirectPolicy {
	cleaned := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{DefaultRedirect}
	}
	return &RedirectPolicy{allowed: cleaned}
}

// Resolve returns target when it is allowed, otherwise the first allowed entry.
func (p *RedirectPolicy) Resolve(target string) string {
	target = strings.TrimSpace(target)
	for _, a := range p.allowed {
		if target == a {
			return target
		}
	}
	return p.allowed[0]
}
