package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// AttendanceHandler handles attendance sessions
type AttendanceHandler struct {
	config  *config.Config
	decoder attendance.Decoder
	faces   FaceService
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(cfg *config.Config, decoder attendance.Decoder, faces FaceService) *AttendanceHandler {
	return &AttendanceHandler{config: cfg, decoder: decoder, faces: faces}
}

type sessionResponse struct {
	SessionID         string          `json:"session_id"`
	ClassID           string          `json:"class_id"`
	CreatedAt         time.Time       `json:"created_at"`
	Threshold         float64         `json:"threshold"`
	ImagesCount       int             `json:"images_count"`
	UnknownFacesCount int             `json:"unknown_faces_count"`
	Result            json.RawMessage `json:"result"`
}

// Create runs attendance over the uploaded class photos
func (h *AttendanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	classID := strings.TrimSpace(r.FormValue("class_id"))
	if classID == "" {
		respondError(w, http.StatusBadRequest, "class_id is required")
		return
	}

	threshold := h.config.Attendance.Threshold
	if s := r.FormValue("threshold"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = v
	}

	images, err := readImages(r.MultipartForm)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(images) == 0 {
		respondError(w, http.StatusBadRequest, "no images")
		return
	}

	galleries, err := database.GetGalleryReader(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "gallery storage not available")
		return
	}
	var persister attendance.SessionPersister
	if sessions, err := database.GetSessionStore(r.Context()); err == nil {
		persister = sessions
	}

	pipeline := attendance.NewPipeline(h.decoder, h.faces, h.faces, galleries, persister, attendance.Options{
		Quality: h.config.Attendance.Quality.Thresholds(),
		Workers: h.config.Attendance.Workers,
	})

	result, err := pipeline.Run(r.Context(), attendance.Request{
		ClassID:   classID,
		Threshold: threshold,
		Images:    images,
	})
	if err != nil {
		status := statusForError(err)
		if status != http.StatusBadRequest {
			log.Printf("Attendance for class %s failed: %v", sanitizeForLog(classID), err)
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Get returns a stored attendance session
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	store, err := database.GetSessionStore(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "session storage not available")
		return
	}

	session, err := store.GetSession(r.Context(), id)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusNotFound {
			respondError(w, status, "session not found")
			return
		}
		log.Printf("Failed to get session %s: %v", sanitizeForLog(id), err)
		respondError(w, status, "failed to get session")
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse{
		SessionID:         session.ID,
		ClassID:           session.ClassID,
		CreatedAt:         session.CreatedAt,
		Threshold:         session.Threshold,
		ImagesCount:       session.ImagesCount,
		UnknownFacesCount: session.UnknownFacesCount,
		Result:            session.Result,
	})
}
