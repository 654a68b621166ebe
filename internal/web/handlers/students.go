package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// StudentsHandler handles student listing
type StudentsHandler struct{}

// NewStudentsHandler creates a new students handler
func NewStudentsHandler() *StudentsHandler {
	return &StudentsHandler{}
}

type studentResponse struct {
	StudentID      string    `json:"student_id"`
	Name           string    `json:"name"`
	ClassID        string    `json:"class_id"`
	CreatedAt      time.Time `json:"created_at"`
	EmbeddingCount int       `json:"embedding_count"`
}

// List returns the students of a class. The optional q parameter filters
// names ignoring case and diacritics.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	classID := r.URL.Query().Get("class_id")
	if classID == "" {
		respondError(w, http.StatusBadRequest, "class_id is required")
		return
	}

	store, err := database.GetStudentStore(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "student storage not available")
		return
	}

	students, err := store.ListStudents(r.Context(), classID, r.URL.Query().Get("q"))
	if err != nil {
		log.Printf("Failed to list students of class %s: %v", sanitizeForLog(classID), err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	out := make([]studentResponse, 0, len(students))
	for _, s := range students {
		out = append(out, studentResponse{
			StudentID:      s.ID,
			Name:           s.Name,
			ClassID:        s.ClassID,
			CreatedAt:      s.CreatedAt,
			EmbeddingCount: s.EmbeddingCount,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
