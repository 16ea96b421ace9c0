package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mategroup/sso/config"
	"github.com/mategroup/sso/internal/session"
	"github.com/mategroup/sso/internal/store"
	"github.com/mategroup/sso/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUsers is a minimal in-memory user repository.
type memUsers struct {
	mu   sync.Mutex
	byID map[string]types.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]types.User{}}
}

func (m *memUsers) GetByID(_ context.Context, id string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByLogin(_ context.Context, identifier string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == identifier || u.Username == identifier {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) UsernameExists(_ context.Context, username, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username == username && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = uuid.NewString()
	user.Version = 1
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if cur.Version != user.Version {
		return types.User{}, store.ErrStaleVersion
	}
	user.Version++
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) update(id string, fn func(*types.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&u)
	m.byID[id] = u
	return nil
}

func (m *memUsers) SetSessionToken(_ context.Context, id, token string) error {
	return m.update(id, func(u *types.User) { u.SessionToken = token })
}

func (m *memUsers) SetAvatar(_ context.Context, id string, ref types.AvatarRef) error {
	return m.update(id, func(u *types.User) { u.Avatar = &ref })
}

func (m *memUsers) ClearAvatar(_ context.Context, id string) error {
	return m.update(id, func(u *types.User) { u.Avatar = nil })
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memBlobs struct{}

func (memBlobs) Put(context.Context, string, io.Reader, int64, string) error { return nil }
func (memBlobs) Delete(context.Context, string) error                        { return nil }
func (memBlobs) PublicURL(key string) string                                 { return "https://cdn.example/" + key }

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func testConfig() config.Config {
	return config.Config{
		Env:  "test",
		Auth: config.AuthConfig{JWTSecret: "server-test-secret", TokenTTL: time.Hour},
		HTTP: config.HTTPConfig{
			AllowedOrigins:       []string{"http://localhost:3000"},
			AllowedRedirects:     []string{"https://mategroup.id"},
			CookieDomainStrategy: session.DomainLastTwoLabels,
			RateLimitRequests:    100,
			RateLimitWindow:      time.Minute,
		},
		MQ: config.MQConfig{Channel: "sso.account-events"},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, Dependencies{
		DB:    okPinger{},
		Users: newMemUsers(),
		Blobs: memBlobs{},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return router
}

func call(t *testing.T, h http.Handler, method, target string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRegisterProfileLoginScenario(t *testing.T) {
	h := newTestRouter(t, testConfig())

	rec := call(t, h, http.MethodPost, "/auth/register", map[string]string{
		"email":    "A@B.com",
		"password": "secret1",
		"fullName": "A",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := jsonBody(t, rec)
	token, _ := registered["token"].(string)
	require.NotEmpty(t, token)

	user := registered["user"].(map[string]any)
	assert.Equal(t, "a@b.com", user["email"])
	assert.Regexp(t, `^a[1-9][0-9]{2}$`, user["username"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = call(t, h, http.MethodGet, "/auth/profile", nil, http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusOK, rec.Code)
	profile := jsonBody(t, rec)
	assert.Equal(t, "a@b.com", profile["email"])
	assert.Equal(t, user["username"], profile["username"])
	assert.NotEmpty(t, profile["createdAt"])

	rec = call(t, h, http.MethodPost, "/auth/login", map[string]string{"email": "a@b.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", jsonBody(t, rec)["error"])

	rec = call(t, h, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@b.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", jsonBody(t, rec)["error"])

	rec = call(t, h, http.MethodPost, "/auth/login", map[string]string{"username": user["username"].(string), "password": "secret1"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutTwice(t *testing.T) {
	h := newTestRouter(t, testConfig())

	for i := 0; i < 2; i++ {
		rec := call(t, h, http.MethodPost, "/auth/logout", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, jsonBody(t, rec)["success"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestRouter(t, testConfig())

	rec := call(t, h, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SSO Server running", jsonBody(t, rec)["status"])
	for k, v := range securityHeaders {
		assert.Equal(t, v, rec.Header().Get(k), k)
	}
}

func TestReadiness(t *testing.T) {
	h := newTestRouter(t, testConfig())

	rec := call(t, h, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up", jsonBody(t, rec)["database"])
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.RateLimitRequests = 3
	h := newTestRouter(t, cfg)

	for i := 0; i < 3; i++ {
		rec := call(t, h, http.MethodGet, "/health", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := call(t, h, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, rateLimitMessage, jsonBody(t, rec)["error"])
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, testConfig())

	rec := call(t, h, http.MethodOptions, "/auth/login", nil, http.Header{
		"Origin":                        {"http://localhost:3000"},
		"Access-Control-Request-Method": {http.MethodPost},
	})
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = call(t, h, http.MethodOptions, "/auth/login", nil, http.Header{
		"Origin":                        {"https://evil.example"},
		"Access-Control-Request-Method": {http.MethodPost},
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouterRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""
	_, err := NewRouter(cfg, Dependencies{Users: newMemUsers(), Blobs: memBlobs{}}, nil)
	assert.Error(t, err)
}
