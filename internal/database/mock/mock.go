// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

// Store is an in-memory implementation of every database store interface.
// Rows keep insertion order so listings are deterministic.
type Store struct {
	mu         sync.RWMutex
	classes    map[string]*database.Class
	students   map[string]*database.Student
	embeddings []database.StudentEmbedding
	sessions   map[string]*database.StoredSession
	cleanups   []database.CleanupRun
	nextEmbID  int64
	now        func() time.Time

	// Track calls
	SaveSessionCalls []string // session IDs

	// Error injection
	UpsertClassError   error
	ListClassesError   error
	UpsertStudentError error
	ListStudentsError  error
	LoadGalleryError   error
	AddEmbeddingError  error
	SaveSessionError   error
	GetSessionError    error
	ListSessionsError  error
	CleanupError       error
}

var (
	_ database.ClassStore      = (*Store)(nil)
	_ database.StudentStore    = (*Store)(nil)
	_ database.EmbeddingWriter = (*Store)(nil)
	_ database.SessionStore    = (*Store)(nil)
)

// NewStore creates a new empty mock store
func NewStore() *Store {
	return &Store{
		classes:  make(map[string]*database.Class),
		students: make(map[string]*database.Student),
		sessions: make(map[string]*database.StoredSession),
		now:      time.Now,
	}
}

// SetNow overrides the clock used for created_at timestamps
func (m *Store) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// UpsertClass creates or renames a class
func (m *Store) UpsertClass(ctx context.Context, id, name string) error {
	if m.UpsertClassError != nil {
		return m.UpsertClassError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.classes[id]; ok {
		c.Name = name
		return nil
	}
	m.classes[id] = &database.Class{ID: id, Name: name, CreatedAt: m.now()}
	return nil
}

// GetClass returns a class by ID
func (m *Store) GetClass(ctx context.Context, id string) (*database.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[id]
	if !ok {
		return nil, fmt.Errorf("class %s: %w", id, database.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// ListClasses returns classes newest first
func (m *Store) ListClasses(ctx context.Context) ([]database.Class, error) {
	if m.ListClassesError != nil {
		return nil, m.ListClassesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpsertStudent creates or updates a student
func (m *Store) UpsertStudent(ctx context.Context, id, classID, name string) error {
	if m.UpsertStudentError != nil {
		return m.UpsertStudentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[classID]; !ok {
		return fmt.Errorf("class %s: %w", classID, database.ErrNotFound)
	}
	if s, ok := m.students[id]; ok {
		s.ClassID = classID
		s.Name = name
		return nil
	}
	m.students[id] = &database.Student{ID: id, ClassID: classID, Name: name, CreatedAt: m.now()}
	return nil
}

// GetStudent returns a student by ID
func (m *Store) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", id, database.ErrNotFound)
	}
	cp := *s
	cp.EmbeddingCount = m.countEmbeddings(id)
	return &cp, nil
}

// ListStudents returns students of a class ordered by name
func (m *Store) ListStudents(ctx context.Context, classID, query string) ([]database.Student, error) {
	if m.ListStudentsError != nil {
		return nil, m.ListStudentsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []database.Student{}
	for _, s := range m.students {
		if s.ClassID != classID || !facematch.NameMatchesQuery(s.Name, query) {
			continue
		}
		cp := *s
		cp.EmbeddingCount = m.countEmbeddings(s.ID)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Store) countEmbeddings(studentID string) int {
	n := 0
	for _, e := range m.embeddings {
		if e.StudentID == studentID {
			n++
		}
	}
	return n
}

// LoadGallery returns names and vectors ordered by student ID and embedding ID
func (m *Store) LoadGallery(ctx context.Context, classID string) ([]string, [][]float32, error) {
	embs, err := m.ClassEmbeddings(ctx, classID)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(embs))
	vectors := make([][]float32, 0, len(embs))
	for _, e := range embs {
		names = append(names, e.StudentName)
		vectors = append(vectors, e.Embedding)
	}
	return names, vectors, nil
}

// ClassEmbeddings returns all embeddings of a class ordered by student ID and embedding ID
func (m *Store) ClassEmbeddings(ctx context.Context, classID string) ([]database.StudentEmbedding, error) {
	if m.LoadGalleryError != nil {
		return nil, m.LoadGalleryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.StudentEmbedding
	for _, e := range m.embeddings {
		s, ok := m.students[e.StudentID]
		if !ok || s.ClassID != classID {
			continue
		}
		e.StudentName = s.Name
		e.ClassID = s.ClassID
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AddEmbedding stores an embedding for a student
func (m *Store) AddEmbedding(ctx context.Context, studentID string, embedding []float32, source string) (int64, error) {
	if m.AddEmbeddingError != nil {
		return 0, m.AddEmbeddingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addEmbeddingLocked(studentID, embedding, source)
}

// ReplaceStudentEmbeddings swaps a student's embeddings for one new row.
// Nothing changes when the insert fails.
func (m *Store) ReplaceStudentEmbeddings(ctx context.Context, studentID string, embedding []float32, source string) (int64, error) {
	if m.AddEmbeddingError != nil {
		return 0, m.AddEmbeddingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[studentID]; !ok {
		return 0, fmt.Errorf("student %s: %w", studentID, database.ErrNotFound)
	}
	kept := m.embeddings[:0]
	for _, e := range m.embeddings {
		if e.StudentID != studentID {
			kept = append(kept, e)
		}
	}
	m.embeddings = kept
	return m.addEmbeddingLocked(studentID, embedding, source)
}

func (m *Store) addEmbeddingLocked(studentID string, embedding []float32, source string) (int64, error) {
	if _, ok := m.students[studentID]; !ok {
		return 0, fmt.Errorf("student %s: %w", studentID, database.ErrNotFound)
	}
	m.nextEmbID++
	v := make([]float32, len(embedding))
	copy(v, embedding)
	m.embeddings = append(m.embeddings, database.StudentEmbedding{
		ID:        m.nextEmbID,
		StudentID: studentID,
		Embedding: v,
		Dim:       len(v),
		Source:    source,
		CreatedAt: m.now(),
	})
	return m.nextEmbID, nil
}

// SaveSession stores a session result
func (m *Store) SaveSession(ctx context.Context, sessionID, classID string, imagesCount int, threshold float64, result *attendance.SessionResult) error {
	if m.SaveSessionError != nil {
		return m.SaveSessionError
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveSessionCalls = append(m.SaveSessionCalls, sessionID)
	m.sessions[sessionID] = &database.StoredSession{
		ID:                sessionID,
		ClassID:           classID,
		CreatedAt:         m.now(),
		Threshold:         threshold,
		ImagesCount:       imagesCount,
		UnknownFacesCount: result.UnknownFacesCount,
		Result:            data,
	}
	return nil
}

// GetSession returns a stored session
func (m *Store) GetSession(ctx context.Context, id string) (*database.StoredSession, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, database.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

// ListSessions returns sessions of a class newest first
func (m *Store) ListSessions(ctx context.Context, classID string, limit int) ([]database.StoredSession, error) {
	if m.ListSessionsError != nil {
		return nil, m.ListSessionsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []database.StoredSession{}
	for _, s := range m.sessions {
		if s.ClassID == classID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteSessionsBefore deletes old sessions and records a cleanup run
func (m *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.CleanupError != nil {
		return 0, m.CleanupError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(m.sessions, id)
			deleted++
		}
	}
	m.cleanups = append(m.cleanups, database.CleanupRun{
		ID:              int64(len(m.cleanups) + 1),
		RanAt:           m.now(),
		DeletedSessions: deleted,
		Note:            "sessions before " + cutoff.Format(time.RFC3339),
	})
	return deleted, nil
}

// LastCleanupRun returns the most recent cleanup run
func (m *Store) LastCleanupRun(ctx context.Context) (*database.CleanupRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.cleanups) == 0 {
		return nil, database.ErrNotFound
	}
	run := m.cleanups[len(m.cleanups)-1]
	return &run, nil
}

// SessionCount returns the number of stored sessions
func (m *Store) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
