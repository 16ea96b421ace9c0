package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedirectPolicy(t *testing.T) {
	p := NewRedirectPolicy([]string{"https://mategroup.id", " https://kasir.mategroup.id ", ""})

	assert.Equal(t, "https://kasir.mategroup.id", p.Resolve("https://kasir.mategroup.id"))
	assert.Equal(t, "https://mategroup.id", p.Resolve("https://evil.example"))
	assert.Equal(t, "https://mategroup.id", p.Resolve(""))
}

func TestRedirectPolicyDefault(t *testing.T) {
	p := NewRedirectPolicy(nil)
	assert.Equal(t, DefaultRedirect, p.Resolve("https://elsewhere"))
}
