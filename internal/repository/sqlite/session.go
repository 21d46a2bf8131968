package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/model"
	"github.com/sakif/everypoll/internal/repository"
)

var _ repository.SessionRepository = sessionStore{}

// Each entity's repository methods live behind a small view type (Users(),
// Polls(), Votes(), Sessions()) rather than directly on *DB — the interfaces
// share method names like Create, which one receiver type cannot carry twice.
type sessionStore struct{ db *DB }

// Sessions returns the session repository view of the database.
func (db *DB) Sessions() repository.SessionRepository { return sessionStore{db} }

func (s sessionStore) Create(ctx context.Context, userID string, ttl time.Duration) (*model.Session, error) {
	now := time.Now()
	sess := &model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting session: %w", err)
	}
	return sess, nil
}

func (s sessionStore) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}
	return &sess, nil
}

// Delete removes the session row. A single-row DELETE is atomic in SQLite,
// so logout is all-or-nothing: either the session is gone or it is intact.
func (s sessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("session", id)
	}
	return nil
}

// DeleteExpired clears sessions past their TTL. Run opportunistically at
// startup; expired sessions are also rejected at read time, so this is
// housekeeping, not correctness.
func (s sessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	return res.RowsAffected()
}
