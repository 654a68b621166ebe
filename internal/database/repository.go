package database

import (
	"context"
	"errors"
	"time"

	"github.com/kozaktomas/class-attendance/internal/attendance"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ClassStore provides access to classes
type ClassStore interface {
	// UpsertClass creates the class or renames an existing one
	UpsertClass(ctx context.Context, id, name string) error
	// GetClass returns ErrNotFound if the class does not exist
	GetClass(ctx context.Context, id string) (*Class, error)
	// ListClasses returns all classes, newest first
	ListClasses(ctx context.Context) ([]Class, error)
}

// StudentStore provides access to students
type StudentStore interface {
	// UpsertStudent creates the student or moves/renames an existing one
	UpsertStudent(ctx context.Context, id, classID, name string) error
	// GetStudent returns ErrNotFound if the student does not exist
	GetStudent(ctx context.Context, id string) (*Student, error)
	// ListStudents returns the students of a class ordered by name.
	// A non-empty query filters names ignoring case and diacritics.
	ListStudents(ctx context.Context, classID, query string) ([]Student, error)
}

// GalleryReader loads enrollment embeddings for matching
type GalleryReader interface {
	// LoadGallery returns student names and embeddings of a class ordered by
	// student ID and embedding ID. Row i of vectors belongs to names[i].
	LoadGallery(ctx context.Context, classID string) (names []string, vectors [][]float32, err error)
	// ClassEmbeddings returns all enrollment embeddings of a class with their owners
	ClassEmbeddings(ctx context.Context, classID string) ([]StudentEmbedding, error)
}

// EmbeddingWriter stores enrollment embeddings
type EmbeddingWriter interface {
	GalleryReader

	// AddEmbedding stores a new embedding for the student and returns its ID
	AddEmbedding(ctx context.Context, studentID string, embedding []float32, source string) (int64, error)
	// ReplaceStudentEmbeddings atomically swaps all embeddings of the student
	// for the given one and returns its ID
	ReplaceStudentEmbeddings(ctx context.Context, studentID string, embedding []float32, source string) (int64, error)
}

// SessionWriter stores attendance sessions. It satisfies attendance.SessionPersister.
type SessionWriter interface {
	SaveSession(ctx context.Context, sessionID, classID string, imagesCount int, threshold float64, result *attendance.SessionResult) error
}

// SessionReader reads stored attendance sessions
type SessionReader interface {
	// GetSession returns ErrNotFound if the session does not exist
	GetSession(ctx context.Context, id string) (*StoredSession, error)
	// ListSessions returns the latest sessions of a class, newest first
	ListSessions(ctx context.Context, classID string, limit int) ([]StoredSession, error)
}

// SessionStore combines session reads, writes and retention
type SessionStore interface {
	SessionWriter
	SessionReader

	// DeleteSessionsBefore deletes sessions created before cutoff, records a
	// cleanup run and returns the number of deleted sessions
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// LastCleanupRun returns the most recent cleanup run or ErrNotFound
	LastCleanupRun(ctx context.Context) (*CleanupRun, error)
}
