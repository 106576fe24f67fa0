package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/shared"
)

// SessionRepository implements [models.Repository] for [models.Session] persistence.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, state, access_token, refresh_token, token_type, expiry, created_at, updated_at`

// Create inserts a new session with a generated ID
func (r *SessionRepository) Create(s *models.Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()
	now := time.Now().UTC()

	query := `INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query,
		id, s.State, s.AccessToken, s.RefreshToken, s.TokenType, expiry(s), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	s.SetID(id)
	s.SetCreatedAt(now)
	s.SetUpdatedAt(now)
	return nil
}

// Get retrieves a session by ID, excluding soft-deleted sessions
func (r *SessionRepository) Get(id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ? AND deleted_at IS NULL`

	s, err := scanSession(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// Update writes the session's state and tokens
func (r *SessionRepository) Update(s *models.Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE sessions
		SET state = ?, access_token = ?, refresh_token = ?, token_type = ?, expiry = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		s.State, s.AccessToken, s.RefreshToken, s.TokenType, expiry(s), now, s.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if err := requireRows(result, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, s.ID())); err != nil {
		return err
	}

	s.SetUpdatedAt(now)
	return nil
}

// Delete soft-deletes a session by ID
func (r *SessionRepository) Delete(id string) error {
	query := `UPDATE sessions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return requireRows(result, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id))
}

// List retrieves sessions matching the given criteria, excluding soft-deleted sessions.
//
// Supported criteria: "logged_in" (bool) and "updated_before" (time.Time).
func (r *SessionRepository) List(criteria map[string]any) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE deleted_at IS NULL`
	args := []any{}

	if loggedIn, ok := criteria["logged_in"].(bool); ok {
		if loggedIn {
			query += " AND access_token != '' AND refresh_token != ''"
		} else {
			query += " AND (access_token = '' OR refresh_token = '')"
		}
	}
	if before, ok := criteria["updated_before"].(time.Time); ok {
		query += " AND updated_at < ?"
		args = append(args, before.UTC())
	}

	query += " ORDER BY created_at ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sessions, nil
}

// Purge permanently removes sessions that were soft-deleted or untouched since before.
func (r *SessionRepository) Purge(before time.Time) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM sessions WHERE deleted_at IS NOT NULL OR updated_at < ?`, before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		s         = models.NewSession()
		id        string
		exp       sql.NullTime
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&id, &s.State, &s.AccessToken, &s.RefreshToken, &s.TokenType, &exp, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.SetID(id)
	s.SetCreatedAt(createdAt)
	s.SetUpdatedAt(updatedAt)
	if exp.Valid {
		s.Expiry = exp.Time.UTC()
	}
	return s, nil
}

func expiry(s *models.Session) sql.NullTime {
	return sql.NullTime{Time: s.Expiry.UTC(), Valid: !s.Expiry.IsZero()}
}
