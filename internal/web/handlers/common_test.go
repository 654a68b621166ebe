package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/enroll"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

func TestRespondJSON_SetsStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"OK", http.StatusOK},
		{"Created", http.StatusCreated},
		{"BadRequest", http.StatusBadRequest},
		{"BadGateway", http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.statusCode, map[string]string{"status": "ok"})

			assertStatusCode(t, recorder, tc.statusCode)
			assertContentType(t, recorder, "application/json")
		})
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusOK, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body, got '%s'", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusBadRequest, "class_id is required")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "class_id is required")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty gallery", fmt.Errorf("%w: class_id=x", attendance.ErrEmptyGallery), http.StatusBadRequest},
		{"no valid face", enroll.ErrNoValidFace, http.StatusBadRequest},
		{"no images", enroll.ErrNoImages, http.StatusBadRequest},
		{"invalid enroll", enroll.ErrInvalidRequest, http.StatusBadRequest},
		{"not found", fmt.Errorf("session x: %w", database.ErrNotFound), http.StatusNotFound},
		{"model changed", fmt.Errorf("class 10A1: %w", facematch.ErrDimensionMismatch), http.StatusConflict},
		{"face service down", fmt.Errorf("image 0: detect: %w", attendance.ErrUnrecoverable), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("10A1\r\nfake entry"); got != "10A1fake entry" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

func TestReadImages(t *testing.T) {
	req := multipartRequest(t, "/", map[string]string{"class_id": "10A1"}, map[string][]string{
		"images":   {"one", "two"},
		"images[]": {"three"},
	})
	if err := req.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		t.Fatal(err)
	}

	images, err := readImages(req.MultipartForm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images) != 3 || string(images[0]) != "one" || string(images[2]) != "three" {
		t.Errorf("unexpected images %q", images)
	}
}

func TestReadImages_TooMany(t *testing.T) {
	files := make([]string, constants.MaxImagesPerRequest+1)
	for i := range files {
		files[i] = "x"
	}
	req := multipartRequest(t, "/", nil, map[string][]string{"images": files})
	if err := req.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		t.Fatal(err)
	}

	if _, err := readImages(req.MultipartForm); err == nil {
		t.Error("expected error for too many images")
	}
}

func TestReadImages_NilForm(t *testing.T) {
	images, err := readImages(nil)
	if err != nil || len(images) != 0 {
		t.Errorf("expected no images and no error, got %v, %v", images, err)
	}
}

func TestHealthCheck(t *testing.T) {
	database.ResetForTesting()
	recorder := httptest.NewRecorder()

	HealthCheck(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]any
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%v'", result["status"])
	}
	if result["database"] != false {
		t.Errorf("expected database false, got %v", result["database"])
	}
}

func TestServiceInfo(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Name: "face-attendance"}}
	recorder := httptest.NewRecorder()

	ServiceInfo(cfg)(recorder, httptest.NewRequest("GET", "/", nil))

	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["service"] != "face-attendance" || result["status"] != "running" {
		t.Errorf("unexpected response %v", result)
	}
}

// multipartBody encodes fields and files as multipart/form-data.
func multipartBody(t *testing.T, fields map[string]string, files map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for field, contents := range files {
		for i, c := range contents {
			fw, err := mw.CreateFormFile(field, fmt.Sprintf("%s-%d.jpg", field, i))
			if err != nil {
				t.Fatal(err)
			}
			fw.Write([]byte(c))
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}
