//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/quality"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func seedClass(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()
	classes := NewClassRepository(pool)
	students := NewStudentRepository(pool)
	embeddings := NewEmbeddingRepository(pool)

	if err := classes.UpsertClass(ctx, "10A1", "Class 10A1"); err != nil {
		t.Fatalf("Failed to upsert class: %v", err)
	}
	for _, s := range []struct{ id, name string }{
		{"HS002", "Bob"},
		{"HS001", "Alice"},
		{"HS003", "Nguyễn Văn An"},
	} {
		if err := students.UpsertStudent(ctx, s.id, "10A1", s.name); err != nil {
			t.Fatalf("Failed to upsert student %s: %v", s.id, err)
		}
	}

	vectors := map[string][][]float32{
		"HS001": {{1, 0, 0}, {0.9, 0.1, 0}},
		"HS002": {{0, 1, 0}},
		"HS003": {{0, 0, 1}},
	}
	for _, id := range []string{"HS002", "HS001", "HS003"} {
		for _, v := range vectors[id] {
			if _, err := embeddings.AddEmbedding(ctx, id, v, database.SourceEnroll); err != nil {
				t.Fatalf("Failed to add embedding: %v", err)
			}
		}
	}
}

func TestClassAndStudentRepositories(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	seedClass(t, ctx, pool)
	classes := NewClassRepository(pool)
	students := NewStudentRepository(pool)

	t.Run("GetClass", func(t *testing.T) {
		c, err := classes.GetClass(ctx, "10A1")
		if err != nil {
			t.Fatalf("Failed to get class: %v", err)
		}
		if c.Name != "Class 10A1" {
			t.Errorf("Expected name 'Class 10A1', got '%s'", c.Name)
		}

		_, err = classes.GetClass(ctx, "missing")
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpsertClassRenames", func(t *testing.T) {
		if err := classes.UpsertClass(ctx, "10A1", "Renamed"); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		list, err := classes.ListClasses(ctx)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(list) != 1 || list[0].Name != "Renamed" {
			t.Errorf("Expected one renamed class, got %+v", list)
		}
	})

	t.Run("ListStudents", func(t *testing.T) {
		list, err := students.ListStudents(ctx, "10A1", "")
		if err != nil {
			t.Fatalf("Failed to list students: %v", err)
		}
		if len(list) != 3 || list[0].Name != "Alice" || list[1].Name != "Bob" {
			t.Fatalf("Expected students ordered by name, got %+v", list)
		}
		if list[0].EmbeddingCount != 2 {
			t.Errorf("Expected Alice to have 2 embeddings, got %d", list[0].EmbeddingCount)
		}
	})

	t.Run("ListStudentsIgnoresDiacritics", func(t *testing.T) {
		list, err := students.ListStudents(ctx, "10A1", "nguyen van")
		if err != nil {
			t.Fatalf("Failed to list students: %v", err)
		}
		if len(list) != 1 || list[0].ID != "HS003" {
			t.Errorf("Expected HS003, got %+v", list)
		}
	})

	t.Run("GetStudent", func(t *testing.T) {
		s, err := students.GetStudent(ctx, "HS002")
		if err != nil {
			t.Fatalf("Failed to get student: %v", err)
		}
		if s.Name != "Bob" || s.EmbeddingCount != 1 {
			t.Errorf("Unexpected student %+v", s)
		}
		if _, err := students.GetStudent(ctx, "nobody"); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestEmbeddingRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	seedClass(t, ctx, pool)
	repo := NewEmbeddingRepository(pool)

	t.Run("LoadGalleryOrder", func(t *testing.T) {
		names, vectors, err := repo.LoadGallery(ctx, "10A1")
		if err != nil {
			t.Fatalf("Failed to load gallery: %v", err)
		}
		want := []string{"Alice", "Alice", "Bob", "Nguyễn Văn An"}
		if len(names) != len(want) {
			t.Fatalf("Expected %d rows, got %d", len(want), len(names))
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("Row %d: expected %q, got %q", i, want[i], names[i])
			}
		}
		if vectors[0][0] != 1 || vectors[1][0] != 0.9 {
			t.Errorf("Expected Alice rows in insertion order, got %v %v", vectors[0], vectors[1])
		}
	})

	t.Run("EmptyClass", func(t *testing.T) {
		names, vectors, err := repo.LoadGallery(ctx, "nobody")
		if err != nil {
			t.Fatalf("Failed to load gallery: %v", err)
		}
		if len(names) != 0 || len(vectors) != 0 {
			t.Errorf("Expected empty gallery, got %d rows", len(names))
		}
	})

	t.Run("ReplaceStudentEmbeddings", func(t *testing.T) {
		id, err := repo.ReplaceStudentEmbeddings(ctx, "HS001", []float32{0.5, 0.5, 0}, database.SourceEnroll)
		if err != nil {
			t.Fatalf("Failed to replace: %v", err)
		}
		embs, err := repo.ClassEmbeddings(ctx, "10A1")
		if err != nil {
			t.Fatalf("Failed to list embeddings: %v", err)
		}
		var alice []database.StudentEmbedding
		for _, e := range embs {
			if e.StudentID == "HS001" {
				alice = append(alice, e)
			}
		}
		if len(embs) != 3 || len(alice) != 1 || alice[0].ID != id {
			t.Errorf("Expected a single new Alice row among 3, got %d rows, alice=%+v", len(embs), alice)
		}
	})

	t.Run("ReplaceRollsBackOnFailedInsert", func(t *testing.T) {
		// pgvector rejects zero-dimension vectors, so the insert fails after the delete.
		if _, err := repo.ReplaceStudentEmbeddings(ctx, "HS002", []float32{}, database.SourceEnroll); err == nil {
			t.Fatal("Expected insert of an empty vector to fail")
		}
		embs, err := repo.ClassEmbeddings(ctx, "10A1")
		if err != nil {
			t.Fatalf("Failed to list embeddings: %v", err)
		}
		if len(embs) != 3 || embs[1].StudentID != "HS002" {
			t.Errorf("Expected Bob's row to survive the failed replace, got %+v", embs)
		}
	})
}

func TestSessionRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	seedClass(t, ctx, pool)
	repo := NewSessionRepository(pool)

	result := attendance.BuildResult("10A1", []string{"Alice", "Bob", "Nguyễn Văn An"},
		attendance.PresentBest{"Alice": 0.91}, 1, 0.6, attendance.Debug{ImagesReceived: 2, ImagesDecoded: 2},
		quality.DefaultThresholds())
	result.SessionID = "session-1"

	t.Run("SaveAndGet", func(t *testing.T) {
		if err := repo.SaveSession(ctx, "session-1", "10A1", 2, 0.6, result); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}

		got, err := repo.GetSession(ctx, "session-1")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got.ImagesCount != 2 || got.UnknownFacesCount != 1 || got.Threshold != 0.6 {
			t.Errorf("Unexpected session metadata %+v", got)
		}

		var stored attendance.SessionResult
		if err := json.Unmarshal(got.Result, &stored); err != nil {
			t.Fatalf("Failed to decode stored result: %v", err)
		}
		if stored.CountPresent != 1 || stored.Present[0].Name != "Alice" || len(stored.Absent) != 2 {
			t.Errorf("Stored result differs: %+v", stored)
		}
	})

	t.Run("ResultRows", func(t *testing.T) {
		var present, absent int
		err := pool.QueryRow(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE status = 'present'),
				COUNT(*) FILTER (WHERE status = 'absent')
			FROM attendance_results WHERE session_id = $1
		`, "session-1").Scan(&present, &absent)
		if err != nil {
			t.Fatalf("Failed to count results: %v", err)
		}
		if present != 1 || absent != 2 {
			t.Errorf("Expected 1 present and 2 absent rows, got %d/%d", present, absent)
		}
	})

	t.Run("ListSessions", func(t *testing.T) {
		list, err := repo.ListSessions(ctx, "10A1", 10)
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		if len(list) != 1 || list[0].ID != "session-1" {
			t.Errorf("Expected session-1, got %+v", list)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := repo.GetSession(ctx, "missing"); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteSessionsBefore", func(t *testing.T) {
		deleted, err := repo.DeleteSessionsBefore(ctx, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("Failed to clean up: %v", err)
		}
		if deleted != 0 {
			t.Errorf("Expected recent session to survive, deleted %d", deleted)
		}

		deleted, err = repo.DeleteSessionsBefore(ctx, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Failed to clean up: %v", err)
		}
		if deleted != 1 {
			t.Errorf("Expected 1 deleted session, got %d", deleted)
		}

		var results int
		if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance_results").Scan(&results); err != nil {
			t.Fatalf("Failed to count results: %v", err)
		}
		if results != 0 {
			t.Errorf("Expected results to cascade, %d left", results)
		}

		run, err := repo.LastCleanupRun(ctx)
		if err != nil {
			t.Fatalf("Failed to get cleanup run: %v", err)
		}
		if run.DeletedSessions != 1 {
			t.Errorf("Expected last run to record 1 deletion, got %d", run.DeletedSessions)
		}
	})
}

func TestMigrationsIdempotent(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	if err := pool.migrate(ctx); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	versions, err := pool.SchemaVersions(ctx)
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(versions) != 1 || versions[0] != "001_init.sql" {
		t.Errorf("Expected [001_init.sql], got %v", versions)
	}
}
