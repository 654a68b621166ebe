package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// EmbeddingRepository provides PostgreSQL-backed storage of enrollment embeddings
type EmbeddingRepository struct {
	pool *Pool
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// LoadGallery returns student names and embeddings of a class.
// Rows are ordered by student ID and embedding ID so ties between equally
// similar rows always resolve the same way.
func (r *EmbeddingRepository) LoadGallery(ctx context.Context, classID string) ([]string, [][]float32, error) {
	embs, err := r.ClassEmbeddings(ctx, classID)
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, len(embs))
	vectors := make([][]float32, len(embs))
	for i, e := range embs {
		names[i] = e.StudentName
		vectors[i] = e.Embedding
	}
	return names, vectors, nil
}

// ClassEmbeddings returns all enrollment embeddings of a class with their owners
func (r *EmbeddingRepository) ClassEmbeddings(ctx context.Context, classID string) ([]database.StudentEmbedding, error) {
	query := `
		SELECT e.id, e.student_id, s.name, s.class_id, e.embedding, e.dim, e.source, e.created_at
		FROM students s
		JOIN student_embeddings e ON e.student_id = s.id
		WHERE s.class_id = $1
		ORDER BY s.id, e.id
	`
	rows, err := r.pool.Query(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("query class embeddings: %w", err)
	}
	defer rows.Close()

	var embs []database.StudentEmbedding
	for rows.Next() {
		var e database.StudentEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.ID, &e.StudentID, &e.StudentName, &e.ClassID, &vec, &e.Dim, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.Embedding = vec.Slice()
		embs = append(embs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embs, nil
}

const insertEmbedding = `
	INSERT INTO student_embeddings (student_id, dim, embedding, source)
	VALUES ($1, $2, $3, $4)
	RETURNING id
`

// AddEmbedding stores a new embedding for the student and returns its ID
func (r *EmbeddingRepository) AddEmbedding(ctx context.Context, studentID string, embedding []float32, source string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, insertEmbedding, studentID, len(embedding), pgvector.NewVector(embedding), source).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert embedding: %w", err)
	}
	return id, nil
}

// ReplaceStudentEmbeddings deletes the student's embeddings and stores the
// new one in a single transaction.
func (r *EmbeddingRepository) ReplaceStudentEmbeddings(ctx context.Context, studentID string, embedding []float32, source string) (int64, error) {
	var id int64
	err := r.pool.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM student_embeddings WHERE student_id = $1", studentID); err != nil {
			return fmt.Errorf("delete embeddings: %w", err)
		}
		err := tx.QueryRowContext(ctx, insertEmbedding, studentID, len(embedding), pgvector.NewVector(embedding), source).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert embedding: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
