package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mategroup/sso/internal/services"
	"github.com/mategroup/sso/internal/session"
	"github.com/mategroup/sso/types"
)

// AccountService is the profile and credential use-case layer.
type AccountService interface {
	Login(ctx context.Context, identifier, secret string) (services.Session, error)
	Register(ctx context.Context, in services.RegisterInput) (services.Session, error)
	ValidateToken(ctx context.Context, token string) (types.PublicUser, error)
	Profile(ctx context.Context, id string) (types.PublicUser, error)
	UpdateProfile(ctx context.Context, id string, in services.UpdateInput) (services.Session, error)
	DeleteAccount(ctx context.Context, id, secret string) error
}

// AuthHandler provides login, registration and profile endpoints.
type AuthHandler struct {
	accounts  AccountService
	transport *session.Transport
	redirects *session.RedirectPolicy
	logger    *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts AccountService, transport *session.Transport, redirects *session.RedirectPolicy, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		accounts:  accounts,
		transport: transport,
		redirects: redirects,
		logger:    logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, verifier TokenVerifier) {
	r.Post("/login", handler.Login)
	r.Post("/register", handler.Register)
	r.Post("/validate-token", handler.ValidateToken)
	r.Post("/logout", handler.Logout)
	r.Get("/logout", handler.LogoutRedirect)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(verifier))
		r.Get("/profile", handler.Profile)
		r.Put("/update-profile", handler.UpdateProfile)
		r.Delete("/delete-account", handler.DeleteAccount)
	})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	FullName       string `json:"fullName"`
	Username       string `json:"username"`
	TurnstileToken string `json:"turnstileToken"`
}

type ValidateTokenRequest struct {
	Token string `json:"token"`
}

type UpdateProfileRequest struct {
	Name            string `json:"name"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	CurrentPassword string `json:"currentPassword"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type SessionResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	User    types.PublicUser `json:"user"`
	Token   string           `json:"token"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ValidateTokenResponse struct {
	Valid bool              `json:"valid"`
	User  *types.PublicUser `json:"user,omitempty"`
	Error string            `json:"error,omitempty"`
	Code  string            `json:"code,omitempty"`
}

// Login verifies credentials, sets the session cookies and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "Invalid request body")
		return
	}

	identifier := req.Email
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Username
	}

	sess, err := h.accounts.Login(r.Context(), identifier, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.respondWithSession(w, r, http.StatusOK, "Login successful", sess)
}

// Register creates an account and logs the new user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "Invalid request body")
		return
	}

	sess, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		FullName:       req.FullName,
		Username:       req.Username,
		TurnstileToken: req.TurnstileToken,
		RemoteIP:       clientIP(r),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.respondWithSession(w, r, http.StatusCreated, "Registration successful! You have been logged in.", sess)
}

// ValidateToken lets sibling applications check a token during SSO handshakes.
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ValidateTokenResponse{
			Error: "Token is required",
			Code:  string(services.KindValidation),
		})
		return
	}

	user, err := h.accounts.ValidateToken(r.Context(), req.Token)
	if err != nil {
		kind := services.KindOf(err)
		status := statusFor(kind)
		message := "Internal server error"
		var svcErr *services.Error
		if errors.As(err, &svcErr) && status < http.StatusInternalServerError {
			message = svcErr.Message
		} else {
			h.logger.ErrorContext(r.Context(), "validate token failed", "error", err)
		}
		writeJSON(w, status, ValidateTokenResponse{Error: message, Code: string(kind)})
		return
	}
	writeJSON(w, http.StatusOK, ValidateTokenResponse{Valid: true, User: &user})
}

// Logout clears every session cookie. It succeeds with or without a session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.transport.Clear(w, r)
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Logged out successfully"})
}

// LogoutRedirect clears the session and sends the browser to an allowed page.
func (h *AuthHandler) LogoutRedirect(w http.ResponseWriter, r *http.Request) {
	h.transport.Clear(w, r)
	http.Redirect(w, r, h.redirects.Resolve(r.URL.Query().Get("redirect")), http.StatusFound)
}

// Profile returns the current authenticated user.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.KindAuth, "Unauthorized - No token provided")
		return
	}

	user, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.KindAuth, "Unauthorized - No token provided")
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "Invalid request body")
		return
	}

	sess, err := h.accounts.UpdateProfile(r.Context(), userID, services.UpdateInput{
		Name:            req.Name,
		Username:        req.Username,
		Password:        req.Password,
		CurrentPassword: req.CurrentPassword,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.respondWithSession(w, r, http.StatusOK, "Profile updated successfully", sess)
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.KindAuth, "Unauthorized - No token provided")
		return
	}

	var req DeleteAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "Password is required for confirmation")
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), userID, req.Password); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.transport.Clear(w, r)
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Account deleted successfully"})
}

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, r *http.Request, status int, message string, sess services.Session) {
	info := session.UserInfo{Email: sess.User.Email, Name: sess.User.Name, Username: sess.User.Username}
	if err := h.transport.Issue(w, r, sess.Token, info); err != nil {
		h.logger.ErrorContext(r.Context(), "set session cookies", "error", err)
		writeError(w, http.StatusInternalServerError, services.KindInternal, "Internal server error")
		return
	}
	writeJSON(w, status, SessionResponse{
		Success: true,
		Message: message,
		User:    sess.User,
		Token:   sess.Token,
	})
}

// clientIP returns the caller address. RealIP middleware has already replaced
// RemoteAddr when a proxy header was present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
