package database

import (
	"encoding/json"
	"time"
)

// Class is a classroom that students are enrolled into.
type Class struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Student is an enrolled student of a class.
type Student struct {
	ID             string
	ClassID        string
	Name           string
	CreatedAt      time.Time
	EmbeddingCount int // number of stored enrollment embeddings
}

// StudentEmbedding is one enrollment embedding of a student.
type StudentEmbedding struct {
	ID          int64
	StudentID   string
	StudentName string
	ClassID     string
	Embedding   []float32
	Dim         int
	Source      string // "enroll"
	CreatedAt   time.Time
}

// StoredSession is an attendance session as stored in the database.
// Result holds the session result JSON exactly as it was returned.
type StoredSession struct {
	ID                string
	ClassID           string
	CreatedAt         time.Time
	Threshold         float64
	ImagesCount       int
	UnknownFacesCount int
	Result            json.RawMessage
}

// CleanupRun records one retention cleanup.
type CleanupRun struct {
	ID              int64
	RanAt           time.Time
	DeletedSessions int64
	Note            string
}

// Embedding sources
const (
	SourceEnroll = "enroll"
)
