package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/enroll"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// FaceService is the model server used for detection and embedding.
type FaceService interface {
	attendance.Detector
	attendance.Embedder
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, attendance.ErrEmptyGallery),
		errors.Is(err, enroll.ErrNoValidFace),
		errors.Is(err, enroll.ErrNoImages),
		errors.Is(err, enroll.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, facematch.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrUnrecoverable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readImages reads the uploaded images of a parsed multipart form. Both
// "images" and "images[]" field names are accepted.
func readImages(form *multipart.Form) ([][]byte, error) {
	if form == nil {
		return nil, nil
	}
	files := make([]*multipart.FileHeader, 0, len(form.File["images"])+len(form.File["images[]"]))
	files = append(files, form.File["images"]...)
	files = append(files, form.File["images[]"]...)
	if len(files) > constants.MaxImagesPerRequest {
		return nil, fmt.Errorf("too many images: %d (max %d)", len(files), constants.MaxImagesPerRequest)
	}

	images := make([][]byte, 0, len(files))
	for _, fileHeader := range files {
		data, err := func() ([]byte, error) {
			file, err := fileHeader.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open file: %s", fileHeader.Filename)
			}
			defer file.Close()
			return io.ReadAll(file)
		}()
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"database": database.IsInitialized(),
	})
}

// ServiceInfo returns a handler describing the running service.
func ServiceInfo(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"service": cfg.App.Name,
			"status":  "running",
		})
	}
}
