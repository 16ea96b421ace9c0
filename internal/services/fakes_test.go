package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mategroup/sso/internal/auth"
	"github.com/mategroup/sso/internal/events"
	"github.com/mategroup/sso/internal/store"
	"github.com/mategroup/sso/types"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu        sync.Mutex
	byID      map[string]types.User
	updateErr error
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
	for _, u := range m.byID {
		if u.Email == user.Email || u.Username == user.Username {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = uuid.NewString()
	user.Version = 1
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return types.User{}, m.updateErr
	}
	current, ok := m.byID[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if current.Version != user.Version {
		return types.User{}, store.ErrStaleVersion
	}
	current.Name = user.Name
	current.Username = user.Username
	current.PasswordHash = user.PasswordHash
	current.Version++
	current.UpdatedAt = time.Now()
	m.byID[user.ID] = current
	return current, nil
}

func (m *memUsers) SetSessionToken(_ context.Context, id, token string) error {
	return m.mutate(id, func(u *types.User) { u.SessionToken = token })
}

func (m *memUsers) SetAvatar(_ context.Context, id string, ref types.AvatarRef) error {
	return m.mutate(id, func(u *types.User) { u.Avatar = &ref })
}

func (m *memUsers) ClearAvatar(_ context.Context, id string) error {
	return m.mutate(id, func(u *types.User) { u.Avatar = nil })
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

func (m *memUsers) mutate(id string, fn func(*types.User)) error {
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

type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	deletes   []string
	putErr    error
	deleteErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}}
}

func (b *memBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, key)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, key)
	return nil
}

func (b *memBlobs) PublicURL(key string) string {
	return "https://cdn.test/profiles/" + key
}

type stubChallenge struct {
	ok    bool
	err   error
	calls int
}

func (s *stubChallenge) Verify(context.Context, string, string) (bool, error) {
	s.calls++
	return s.ok, s.err
}

type recordingEvents struct {
	enabled bool
	events  []events.Event
}

func (r *recordingEvents) Enabled() bool { return r.enabled }

func (r *recordingEvents) Publish(_ context.Context, e events.Event) {
	if r.enabled {
		r.events = append(r.events, e)
	}
}

type recordingReporter struct {
	errs []error
}

func (r *recordingReporter) Capture(_ context.Context, err error) {
	r.errs = append(r.errs, err)
}

type fixture struct {
	users     *memUsers
	blobs     *memBlobs
	challenge *stubChallenge
	events    *recordingEvents
	reporter  *recordingReporter
	tokens    *auth.TokenIssuer
	logs      *bytes.Buffer
	accounts  *AccountService
	avatars   *AvatarService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:     newMemUsers(),
		blobs:     newMemBlobs(),
		challenge: &stubChallenge{ok: true},
		events:    &recordingEvents{},
		reporter:  &recordingReporter{},
		logs:      &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tokens, err := auth.NewTokenIssuer("test-secret", auth.DefaultTokenTTL, logger)
	require.NoError(t, err)
	f.tokens = tokens

	f.avatars = NewAvatarService(f.users, f.blobs, f.reporter, logger)
	f.accounts = NewAccountService(AccountDeps{
		Users:     f.users,
		Hasher:    auth.NewPasswordHasher(),
		Tokens:    tokens,
		Challenge: f.challenge,
		Events:    f.events,
		Avatars:   f.avatars,
		Reporter:  f.reporter,
		Logger:    logger,
	})
	return f
}

func (f *fixture) register(t *testing.T, email, password string) Session {
	t.Helper()
	sess, err := f.accounts.Register(context.Background(), RegisterInput{
		Email: email, Password: password, FullName: "Test User",
	})
	require.NoError(t, err)
	return sess
}

func requireKind(t *testing.T, err error, kind Kind, message string) {
	t.Helper()
	require.Error(t, err)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr), "expected *services.Error, got %T", err)
	require.Equal(t, kind, svcErr.Kind)
	if message != "" {
		require.Equal(t, message, svcErr.Message)
	}
}
