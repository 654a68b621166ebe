package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// SessionRepository provides PostgreSQL-backed attendance session storage
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// SaveSession stores the session result verbatim together with one
// attendance_results row per present and absent student, in one transaction.
func (r *SessionRepository) SaveSession(ctx context.Context, sessionID, classID string, imagesCount int, threshold float64, result *attendance.SessionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result: %w", err)
	}

	return r.pool.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_sessions (id, class_id, threshold, images_count, unknown_faces_count, result)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, sessionID, classID, threshold, imagesCount, result.UnknownFacesCount, data)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		// Results reference students by ID; the result only carries names.
		present := `
			INSERT INTO attendance_results (session_id, student_id, status, best_score)
			SELECT $1, id, 'present', $2 FROM students WHERE class_id = $3 AND name = $4
		`
		for _, p := range result.Present {
			if _, err := tx.ExecContext(ctx, present, sessionID, p.Score, classID, p.Name); err != nil {
				return fmt.Errorf("insert present result for %s: %w", p.Name, err)
			}
		}

		if len(result.Absent) > 0 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO attendance_results (session_id, student_id, status)
				SELECT $1, id, 'absent' FROM students WHERE class_id = $2 AND name = ANY($3)
			`, sessionID, classID, pq.Array(result.Absent))
			if err != nil {
				return fmt.Errorf("insert absent results: %w", err)
			}
		}
		return nil
	})
}

const sessionColumns = "id, class_id, created_at, threshold, images_count, unknown_faces_count, result"

func scanSession(row interface{ Scan(...any) error }) (*database.StoredSession, error) {
	var s database.StoredSession
	var result []byte
	if err := row.Scan(&s.ID, &s.ClassID, &s.CreatedAt, &s.Threshold, &s.ImagesCount, &s.UnknownFacesCount, &result); err != nil {
		return nil, err
	}
	s.Result = json.RawMessage(result)
	return &s, nil
}

// GetSession retrieves a session by ID
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*database.StoredSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, "SELECT "+sessionColumns+" FROM attendance_sessions WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions returns the latest sessions of a class, newest first
func (r *SessionRepository) ListSessions(ctx context.Context, classID string, limit int) ([]database.StoredSession, error) {
	if limit <= 0 {
		limit = database.DefaultSessionListLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE class_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, classID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []database.StoredSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSessionsBefore deletes sessions created before cutoff (results are
// removed by cascade) and records the run in cleanup_runs.
func (r *SessionRepository) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.pool.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM attendance_sessions WHERE created_at < $1", cutoff)
		if err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if count, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}

		note := "sessions before " + cutoff.UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx, "INSERT INTO cleanup_runs (deleted_sessions, note) VALUES ($1, $2)", count, note); err != nil {
			return fmt.Errorf("record cleanup run: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// LastCleanupRun returns the most recent cleanup run
func (r *SessionRepository) LastCleanupRun(ctx context.Context) (*database.CleanupRun, error) {
	var run database.CleanupRun
	var note sql.NullString
	err := r.pool.QueryRow(ctx, `
		SELECT id, ran_at, deleted_sessions, note
		FROM cleanup_runs
		ORDER BY ran_at DESC, id DESC
		LIMIT 1
	`).Scan(&run.ID, &run.RanAt, &run.DeletedSessions, &note)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get last cleanup run: %w", err)
	}
	run.Note = note.String
	return &run, nil
}
