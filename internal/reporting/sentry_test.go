package reporting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mategroup/sso/config"
	"github.com/stretchr/testify/assert"
)

func TestDisabledReporterIsNoop(t *testing.T) {
	r := New(config.SentryConfig{}, "test", nil)
	assert.False(t, r.Enabled())

	assert.NotPanics(t, func() {
		r.Capture(context.Background(), errors.New("boom"))
		r.Flush()
	})

	var nilReporter *Reporter
	assert.False(t, nilReporter.Enabled())
	nilReporter.Capture(context.Background(), errors.New("boom"))
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	called := false
	h := Disabled().Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
