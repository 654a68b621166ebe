package database

import (
	"context"
	"errors"
)

var (
	postgresClassStore      func() ClassStore
	postgresStudentStore    func() StudentStore
	postgresEmbeddingWriter func() EmbeddingWriter
	postgresSessionStore    func() SessionStore
	postgresInitialized     bool
)

var errNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	classes func() ClassStore,
	students func() StudentStore,
	embeddings func() EmbeddingWriter,
	sessions func() SessionStore,
) {
	postgresClassStore = classes
	postgresStudentStore = students
	postgresEmbeddingWriter = embeddings
	postgresSessionStore = sessions
	postgresInitialized = true
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetClassStore returns a ClassStore from the PostgreSQL backend
func GetClassStore(ctx context.Context) (ClassStore, error) {
	if !postgresInitialized || postgresClassStore == nil {
		return nil, errNotInitialized
	}
	return postgresClassStore(), nil
}

// GetStudentStore returns a StudentStore from the PostgreSQL backend
func GetStudentStore(ctx context.Context) (StudentStore, error) {
	if !postgresInitialized || postgresStudentStore == nil {
		return nil, errNotInitialized
	}
	return postgresStudentStore(), nil
}

// GetEmbeddingWriter returns an EmbeddingWriter from the PostgreSQL backend
func GetEmbeddingWriter(ctx context.Context) (EmbeddingWriter, error) {
	if !postgresInitialized || postgresEmbeddingWriter == nil {
		return nil, errNotInitialized
	}
	return postgresEmbeddingWriter(), nil
}

// GetGalleryReader returns a GalleryReader from the PostgreSQL backend
func GetGalleryReader(ctx context.Context) (GalleryReader, error) {
	return GetEmbeddingWriter(ctx)
}

// GetSessionStore returns a SessionStore from the PostgreSQL backend
func GetSessionStore(ctx context.Context) (SessionStore, error) {
	if !postgresInitialized || postgresSessionStore == nil {
		return nil, errNotInitialized
	}
	return postgresSessionStore(), nil
}

// ResetForTesting clears all registered backends.
func ResetForTesting() {
	postgresClassStore = nil
	postgresStudentStore = nil
	postgresEmbeddingWriter = nil
	postgresSessionStore = nil
	postgresInitialized = false
}
