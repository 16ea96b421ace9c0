package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
		ok     bool
	}{
		{name: "none"},
		{name: "cookie", cookie: "c-tok", want: "c-tok", ok: true},
		{name: "bearer", header: "Bearer h-tok", want: "h-tok", ok: true},
		{name: "bearer lowercase scheme", header: "bearer h-tok", want: "h-tok", ok: true},
		{name: "cookie wins", cookie: "c-tok", header: "Bearer h-tok", want: "c-tok", ok: true},
		{name: "empty cookie falls through", cookie: " ", header: "Bearer h-tok", want: "h-tok", ok: true},
		{name: "basic scheme", header: "Basic abc"},
		{name: "bearer without token", header: "Bearer "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got, ok := ExtractToken(req)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
