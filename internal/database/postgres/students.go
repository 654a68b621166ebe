package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// StudentRepository provides PostgreSQL-backed student storage
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// UpsertStudent creates the student or moves/renames an existing one
func (r *StudentRepository) UpsertStudent(ctx context.Context, id, classID, name string) error {
	query := `
		INSERT INTO students (id, class_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			class_id = EXCLUDED.class_id,
			name = EXCLUDED.name
	`
	if _, err := r.pool.Exec(ctx, query, id, classID, name); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// GetStudent retrieves a student by ID with its embedding count
func (r *StudentRepository) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	query := `
		SELECT s.id, s.class_id, s.name, s.created_at,
			(SELECT COUNT(*) FROM student_embeddings e WHERE e.student_id = s.id)
		FROM students s
		WHERE s.id = $1
	`
	var s database.Student
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.ClassID, &s.Name, &s.CreatedAt, &s.EmbeddingCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &s, nil
}

// ListStudents returns the students of a class ordered by name.
// The query is matched in Go so that diacritics are ignored
// (e.g., "nguyen" matches "Nguyễn").
func (r *StudentRepository) ListStudents(ctx context.Context, classID, query string) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.class_id, s.name, s.created_at, COUNT(e.id)
		FROM students s
		LEFT JOIN student_embeddings e ON e.student_id = s.id
		WHERE s.class_id = $1
		GROUP BY s.id
		ORDER BY s.name, s.id
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	students := []database.Student{}
	for rows.Next() {
		var s database.Student
		if err := rows.Scan(&s.ID, &s.ClassID, &s.Name, &s.CreatedAt, &s.EmbeddingCount); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		if !facematch.NameMatchesQuery(s.Name, query) {
			continue
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}
