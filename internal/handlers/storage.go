package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mategroup/sso/internal/services"
	"github.com/mategroup/sso/types"
)

const (
	formFieldFile = "file"

	// multipartOverhead leaves room for boundaries and part headers on top
	// of the largest accepted file.
	multipartOverhead  = 1 << 20
	maxMultipartMemory = 8 << 20
)

// AvatarService manages the current user's avatar blob.
type AvatarService interface {
	Upload(ctx context.Context, userID string, up services.Upload) (types.AvatarRef, error)
	Remove(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (*string, error)
}

// StorageHandler provides avatar upload endpoints.
type StorageHandler struct {
	avatars AvatarService
	logger  *slog.Logger
}

func NewStorageHandler(avatars AvatarService, logger *slog.Logger) *StorageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageHandler{avatars: avatars, logger: logger}
}

// StorageRouter registers avatar routes. Every route requires a session.
func StorageRouter(r chi.Router, handler *StorageHandler, verifier TokenVerifier) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(verifier))
		r.Post("/upload", handler.Upload)
		r.Delete("/avatar", handler.Delete)
		r.Get("/avatar", handler.Get)
	})
}

type UploadResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	URL     string `json:"url"`
}

type AvatarResponse struct {
	AvatarURL *string `json:"avatarUrl"`
}

func (h *StorageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.KindAuth, "Unauthorized - No token provided")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAvatarSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, services.KindValidation, "File too large. Maximum size is 5MB.")
			return
		}
		writeError(w, http.StatusBadRequest, services.KindValidation, "No file uploaded")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	header, err := singleFile(r.MultipartForm)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if err := services.ValidateUpload(contentType, header.Size); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "open uploaded file", "error", err)
		writeError(w, http.StatusInternalServerError, services.KindInternal, "Failed to upload file")
		return
	}
	defer file.Close()

	ref, err := h.avatars.Upload(r.Context(), userID, services.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Success: true, Path: ref.Path, URL: ref.URL})
}

func (h *StorageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.KindAuth, "Unauthorized - No token provided")
		return
	}

	if err := h.avatars.Remove(r.Context(), userID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Avatar deleted successfully"})
}

func (h *StorageHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.KindAuth, "Unauthorized - No token provided")
		return
	}

	url, err := h.avatars.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, AvatarResponse{AvatarURL: url})
}

func singleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	var files []*multipart.FileHeader
	if form != nil {
		files = form.File[formFieldFile]
	}
	switch len(files) {
	case 0:
		return nil, &services.Error{Kind: services.KindValidation, Message: "No file uploaded"}
	case 1:
		return files[0], nil
	default:
		return nil, &services.Error{Kind: services.KindValidation, Message: "Please upload a single file"}
	}
}
