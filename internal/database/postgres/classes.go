package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// ClassRepository provides PostgreSQL-backed class storage
type ClassRepository struct {
	pool *Pool
}

// NewClassRepository creates a new PostgreSQL class repository
func NewClassRepository(pool *Pool) *ClassRepository {
	return &ClassRepository{pool: pool}
}

// UpsertClass creates the class or renames an existing one
func (r *ClassRepository) UpsertClass(ctx context.Context, id, name string) error {
	query := `
		INSERT INTO classes (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`
	if _, err := r.pool.Exec(ctx, query, id, name); err != nil {
		return fmt.Errorf("upsert class: %w", err)
	}
	return nil
}

// GetClass retrieves a class by ID
func (r *ClassRepository) GetClass(ctx context.Context, id string) (*database.Class, error) {
	var c database.Class
	var name sql.NullString
	err := r.pool.QueryRow(ctx, "SELECT id, name, created_at FROM classes WHERE id = $1", id).
		Scan(&c.ID, &name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("class %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	c.Name = name.String
	return &c, nil
}

// ListClasses returns all classes, newest first
func (r *ClassRepository) ListClasses(ctx context.Context) ([]database.Class, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, created_at FROM classes ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	classes := []database.Class{}
	for rows.Next() {
		var c database.Class
		var name sql.NullString
		if err := rows.Scan(&c.ID, &name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		c.Name = name.String
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classes: %w", err)
	}
	return classes, nil
}
