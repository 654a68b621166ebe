package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/enroll"
)

// EnrollHandler handles student enrollment
type EnrollHandler struct {
	config  *config.Config
	decoder attendance.Decoder
	faces   FaceService
}

// NewEnrollHandler creates a new enroll handler
func NewEnrollHandler(cfg *config.Config, decoder attendance.Decoder, faces FaceService) *EnrollHandler {
	return &EnrollHandler{config: cfg, decoder: decoder, faces: faces}
}

func (h *EnrollHandler) service(r *http.Request) (*enroll.Service, error) {
	classes, err := database.GetClassStore(r.Context())
	if err != nil {
		return nil, err
	}
	students, err := database.GetStudentStore(r.Context())
	if err != nil {
		return nil, err
	}
	embeddings, err := database.GetEmbeddingWriter(r.Context())
	if err != nil {
		return nil, err
	}
	return enroll.NewService(h.decoder, h.faces, h.faces, classes, students, embeddings, enroll.Options{
		Quality:           h.config.Attendance.Quality.Thresholds(),
		DuplicateDistance: h.config.Attendance.Enroll.DuplicateDistance,
		IndexDir:          h.config.Database.HNSWIndexPath,
	}), nil
}

// Enroll handles multipart enrollment uploads
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	replace := false
	if s := r.FormValue("replace"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid replace value")
			return
		}
		replace = v
	}

	images, err := readImages(r.MultipartForm)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc, err := h.service(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage not available")
		return
	}

	result, err := svc.Enroll(r.Context(), enroll.Request{
		ClassID:     strings.TrimSpace(r.FormValue("class_id")),
		StudentID:   strings.TrimSpace(r.FormValue("student_id")),
		StudentName: strings.TrimSpace(r.FormValue("student_name")),
		Images:      images,
		Replace:     replace,
	})
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			log.Printf("Enrollment failed: %v", err)
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}
