package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// ClassesHandler handles class and session history endpoints
type ClassesHandler struct{}

// NewClassesHandler creates a new classes handler
func NewClassesHandler() *ClassesHandler {
	return &ClassesHandler{}
}

type classResponse struct {
	ClassID   string    `json:"class_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type createClassRequest struct {
	ClassID string `json:"class_id"`
	Name    string `json:"name"`
}

type sessionSummaryResponse struct {
	SessionID         string    `json:"session_id"`
	ClassID           string    `json:"class_id"`
	CreatedAt         time.Time `json:"created_at"`
	Threshold         float64   `json:"threshold"`
	ImagesCount       int       `json:"images_count"`
	UnknownFacesCount int       `json:"unknown_faces_count"`
}

func getClassStore(r *http.Request, w http.ResponseWriter) database.ClassStore {
	store, err := database.GetClassStore(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "class storage not available")
		return nil
	}
	return store
}

// List returns all classes, newest first
func (h *ClassesHandler) List(w http.ResponseWriter, r *http.Request) {
	store := getClassStore(r, w)
	if store == nil {
		return
	}

	classes, err := store.ListClasses(r.Context())
	if err != nil {
		log.Printf("Failed to list classes: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list classes")
		return
	}

	out := make([]classResponse, 0, len(classes))
	for _, c := range classes {
		out = append(out, classResponse{ClassID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt})
	}
	respondJSON(w, http.StatusOK, out)
}

// Create creates a class or renames an existing one
func (h *ClassesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.ClassID = strings.TrimSpace(req.ClassID)
	if req.ClassID == "" {
		respondError(w, http.StatusBadRequest, "class_id is required")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = req.ClassID
	}

	store := getClassStore(r, w)
	if store == nil {
		return
	}

	if err := store.UpsertClass(r.Context(), req.ClassID, req.Name); err != nil {
		log.Printf("Failed to save class %s: %v", sanitizeForLog(req.ClassID), err)
		respondError(w, http.StatusInternalServerError, "failed to save class")
		return
	}
	class, err := store.GetClass(r.Context(), req.ClassID)
	if err != nil {
		respondError(w, statusForError(err), "failed to load class")
		return
	}

	respondJSON(w, http.StatusCreated, classResponse{ClassID: class.ID, Name: class.Name, CreatedAt: class.CreatedAt})
}

// Sessions returns the latest attendance sessions of a class
func (h *ClassesHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "id")

	limit := constants.DefaultSessionPageSize
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, constants.MaxSessionPageSize)
	}

	store, err := database.GetSessionStore(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "session storage not available")
		return
	}

	sessions, err := store.ListSessions(r.Context(), classID, limit)
	if err != nil {
		log.Printf("Failed to list sessions of class %s: %v", sanitizeForLog(classID), err)
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]sessionSummaryResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummaryResponse{
			SessionID:         s.ID,
			ClassID:           s.ClassID,
			CreatedAt:         s.CreatedAt,
			Threshold:         s.Threshold,
			ImagesCount:       s.ImagesCount,
			UnknownFacesCount: s.UnknownFacesCount,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
