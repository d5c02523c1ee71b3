package jobs

import (
	"database/sql"
	"time"

	"github.com/NicolasKol/reforge/internal/storage"
)

// Store persists jobs in the shared sqlite database.
type Store struct {
	db *storage.DB
}

// NewStore creates a job store over the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Save inserts or replaces a job row.
func (s *Store) Save(job *Job) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO jobs (id, kind, payload, status, created_at, started_at, completed_at, error, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error,
			result = excluded.result
	`, job.ID, string(job.Kind), job.Payload, string(job.Status),
		job.CreatedAt.Format(time.RFC3339Nano),
		formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
		job.Error, job.Result)
	return err
}

// Get loads a job by id, or nil when absent.
func (s *Store) Get(id string) (*Job, error) {
	row := s.db.Conn().QueryRow(`
		SELECT id, kind, COALESCE(payload, ''), status, created_at,
			started_at, completed_at, COALESCE(error, ''), COALESCE(result, '')
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

// List returns the most recent jobs, newest first.
func (s *Store) List(limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Conn().Query(`
		SELECT id, kind, COALESCE(payload, ''), status, created_at,
			started_at, completed_at, COALESCE(error, ''), COALESCE(result, '')
		FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scannable) (*Job, error) {
	var job Job
	var kind, status, createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&job.ID, &kind, &job.Payload, &status, &createdAt,
		&startedAt, &completedAt, &job.Error, &job.Result)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.Kind = Kind(kind)
	job.Status = Status(status)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		job.CreatedAt = t
	}
	job.StartedAt = parseTimePtr(startedAt)
	job.CompletedAt = parseTimePtr(completedAt)
	return &job, nil
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s.String); err == nil {
		return &t
	}
	return nil
}
