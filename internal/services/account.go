package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mategroup/sso/internal/auth"
	"github.com/mategroup/sso/internal/events"
	"github.com/mategroup/sso/internal/store"
	"github.com/mategroup/sso/types"
)

// UserRepository defines persistence operations for identity records.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByLogin(ctx context.Context, identifier string) (types.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username, excludeID string) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
	SetSessionToken(ctx context.Context, id, token string) error
	SetAvatar(ctx context.Context, id string, ref types.AvatarRef) error
	ClearAvatar(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

type TokenIssuer interface {
	Issue(user types.User) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// ChallengeVerifier checks anti-automation tokens.
type ChallengeVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

type EventPublisher interface {
	Enabled() bool
	Publish(ctx context.Context, event events.Event)
}

type ErrorReporter interface {
	Capture(ctx context.Context, err error)
}

// AccountDeps groups the collaborators of AccountService.
type AccountDeps struct {
	Users     UserRepository
	Hasher    PasswordHasher
	Tokens    TokenIssuer
	Challenge ChallengeVerifier
	Events    EventPublisher
	Avatars   *AvatarService
	Reporter  ErrorReporter
	Logger    *slog.Logger
}

// AccountService encapsulates login, registration and profile use-cases.
type AccountService struct {
	users     UserRepository
	hasher    PasswordHasher
	tokens    TokenIssuer
	challenge ChallengeVerifier
	events    EventPublisher
	avatars   *AvatarService
	reporter  ErrorReporter
	logger    *slog.Logger
	suffix    func() string
}

func NewAccountService(deps AccountDeps) *AccountService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:     deps.Users,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		challenge: deps.Challenge,
		events:    deps.Events,
		avatars:   deps.Avatars,
		reporter:  deps.Reporter,
		logger:    logger,
		suffix:    randomSuffix,
	}
}

// Session is an authenticated identity plus its freshly issued token.
type Session struct {
	User  types.PublicUser
	Token string
}

type RegisterInput struct {
	Email          string
	Password       string
	FullName       string
	Username       string
	TurnstileToken string
	RemoteIP       string
}

type UpdateInput struct {
	Name            string
	Username        string
	Password        string
	CurrentPassword string
}

const invalidCredentials = "Invalid email or password"

// Login matches identifier against email or username. Unknown identifiers and
// wrong passwords produce the same error.
func (s *AccountService) Login(ctx context.Context, identifier, secret string) (Session, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || secret == "" {
		return Session{}, validationError("Email and password are required")
	}

	user, err := s.users.GetByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, authError(invalidCredentials)
		}
		return Session{}, s.internal(ctx, "Internal server error", err)
	}
	if !s.hasher.Verify(secret, user.PasswordHash) {
		return Session{}, authError(invalidCredentials)
	}

	token, err := s.issue(ctx, user)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user.Public(), Token: token}, nil
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	email := normalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	if email == "" || in.Password == "" {
		return Session{}, validationError("Email and password are required")
	}
	if fullName == "" {
		return Session{}, validationError("Full name is required")
	}
	if len(in.Password) < minPasswordLength {
		return Session{}, validationError("Password must be at least 6 characters")
	}
	if !validEmail(email) {
		return Session{}, validationError("Please provide a valid email address")
	}

	if token := strings.TrimSpace(in.TurnstileToken); token != "" {
		if err := s.verifyChallenge(ctx, token, in.RemoteIP); err != nil {
			return Session{}, err
		}
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return Session{}, s.internal(ctx, "Registration failed", err)
	}
	if exists {
		return Session{}, conflictError("Email is already registered. Please log in.")
	}

	username := normalizeUsername(in.Username)
	if username != "" {
		if err := validateUsername(username); err != nil {
			return Session{}, err
		}
		taken, err := s.users.UsernameExists(ctx, username, "")
		if err != nil {
			return Session{}, s.internal(ctx, "Registration failed", err)
		}
		if taken {
			return Session{}, conflictError("Username already taken")
		}
	} else {
		username, err = s.generateUsername(ctx, email)
		if err != nil {
			return Session{}, err
		}
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, s.internal(ctx, "Registration failed", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Name:          fullName,
		Username:      username,
		Email:         email,
		PasswordHash:  hashed,
		Subscriptions: map[string]types.Plan{},
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Session{}, conflictError("Email or username already in use")
		}
		return Session{}, s.internal(ctx, "Registration failed", err)
	}

	token, err := s.issue(ctx, user)
	if err != nil {
		return Session{}, err
	}

	s.publish(ctx, events.Event{Type: events.AccountRegistered, UserID: user.ID})
	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return Session{User: user.Public(), Token: token}, nil
}

// ValidateToken verifies token and checks the identity still exists.
func (s *AccountService) ValidateToken(ctx context.Context, token string) (types.PublicUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return types.PublicUser{}, validationError("Token is required")
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return types.PublicUser{}, authError("Invalid or expired token")
	}
	user, err := s.users.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.PublicUser{}, authError("User not found")
		}
		return types.PublicUser{}, s.internal(ctx, "Internal server error", err)
	}
	return user.Public(), nil
}

func (s *AccountService) Profile(ctx context.Context, id string) (types.PublicUser, error) {
	user, err := s.load(ctx, id, "Failed to fetch profile")
	if err != nil {
		return types.PublicUser{}, err
	}
	return user.PublicWithTimestamps(), nil
}

// UpdateProfile changes name, username and optionally the password.
// A password change always requires the current password.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, in UpdateInput) (Session, error) {
	name := strings.TrimSpace(in.Name)
	username := normalizeUsername(in.Username)
	if name == "" || username == "" {
		return Session{}, validationError("Name and username are required")
	}

	user, err := s.load(ctx, id, "Failed to update profile")
	if err != nil {
		return Session{}, err
	}

	if username != user.Username {
		if err := validateUsername(username); err != nil {
			return Session{}, err
		}
		taken, err := s.users.UsernameExists(ctx, username, user.ID)
		if err != nil {
			return Session{}, s.internal(ctx, "Failed to update profile", err)
		}
		if taken {
			return Session{}, conflictError("Username already taken")
		}
	}

	if in.Password != "" {
		if len(in.Password) < minPasswordLength {
			return Session{}, validationError("Password must be at least 6 characters")
		}
		if in.CurrentPassword == "" {
			return Session{}, validationError("Current password is required to change password")
		}
		if !s.hasher.Verify(in.CurrentPassword, user.PasswordHash) {
			return Session{}, authError("Current password is incorrect")
		}
		hashed, err := s.hasher.Hash(in.Password)
		if err != nil {
			return Session{}, s.internal(ctx, "Failed to update profile", err)
		}
		user.PasswordHash = hashed
	}

	user.Name = name
	user.Username = username
	updated, err := s.users.UpdateProfile(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return Session{}, notFoundError("User not found")
		case errors.Is(err, store.ErrDuplicate):
			return Session{}, conflictError("Username already taken")
		case errors.Is(err, store.ErrStaleVersion):
			return Session{}, conflictError("Profile was modified concurrently, please retry")
		}
		return Session{}, s.internal(ctx, "Failed to update profile", err)
	}

	token, err := s.issue(ctx, updated)
	if err != nil {
		return Session{}, err
	}

	s.publish(ctx, events.Event{Type: events.AccountUpdated, UserID: updated.ID})
	return Session{User: updated.Public(), Token: token}, nil
}

// DeleteAccount removes the identity after confirming the password. The avatar
// blob is cleaned up by the events worker, or inline when no broker is set.
func (s *AccountService) DeleteAccount(ctx context.Context, id, secret string) error {
	if secret == "" {
		return validationError("Password is required for confirmation")
	}

	user, err := s.load(ctx, id, "Failed to delete account")
	if err != nil {
		return err
	}
	if !s.hasher.Verify(secret, user.PasswordHash) {
		return authError("Invalid password")
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("User not found")
		}
		return s.internal(ctx, "Failed to delete account", err)
	}

	event := events.Event{Type: events.AccountDeleted, UserID: user.ID}
	if user.Avatar != nil {
		event.AvatarPath = user.Avatar.Path
		if !s.eventsEnabled() && s.avatars != nil {
			if err := s.avatars.bestEffortCleanup(ctx, user.Avatar.Path); err != nil {
				s.logger.Warn("avatar cleanup after account deletion failed",
					"user_id", user.ID, "path", user.Avatar.Path, "error", err)
			}
		}
	}
	s.publish(ctx, event)
	s.logger.Info("account deleted", "user_id", user.ID)
	return nil
}

func (s *AccountService) load(ctx context.Context, id, failure string) (types.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, notFoundError("User not found")
		}
		return types.User{}, s.internal(ctx, failure, err)
	}
	return user, nil
}

// issue signs a token for user and records it as the latest session token.
func (s *AccountService) issue(ctx context.Context, user types.User) (string, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", s.internal(ctx, "Internal server error", err)
	}
	if err := s.users.SetSessionToken(ctx, user.ID, token); err != nil {
		return "", s.internal(ctx, "Internal server error", err)
	}
	return token, nil
}

func (s *AccountService) verifyChallenge(ctx context.Context, token, remoteIP string) error {
	if s.challenge == nil {
		return upstreamError("Security verification error", errors.New("challenge verifier not configured"))
	}
	ok, err := s.challenge.Verify(ctx, token, remoteIP)
	if err != nil {
		s.logger.Error("turnstile verification error", "error", err)
		s.capture(ctx, err)
		return upstreamError("Security verification error", err)
	}
	if !ok {
		return validationError("Security verification failed. Please try again.")
	}
	return nil
}

func (s *AccountService) eventsEnabled() bool {
	return s.events != nil && s.events.Enabled()
}

func (s *AccountService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event)
}

func (s *AccountService) internal(ctx context.Context, message string, err error) error {
	s.logger.Error(message, "error", err)
	s.capture(ctx, err)
	return internalError(message, err)
}

func (s *AccountService) capture(ctx context.Context, err error) {
	if s.reporter != nil {
		s.reporter.Capture(ctx, err)
	}
}
