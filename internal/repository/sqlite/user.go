package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/model"
	"github.com/sakif/everypoll/internal/repository"
)

var _ repository.UserRepository = userStore{}

type userStore struct{ db *DB }

// Users returns the user repository view of the database.
func (db *DB) Users() repository.UserRepository { return userStore{db} }

// Create inserts a new user. Email and name are usually nil here — users are
// born anonymous and pick up an identity via SetIdentity later.
func (s userStore) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now()

	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email is already in use")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (s userStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return &u, nil
}

// GetByEmail retrieves the user owning a linked email, if any.
func (s userStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return &u, nil
}

// SetIdentity links a verified external identity to an existing user,
// updating email/name in place. The row keeps its ID, so everything the user
// did while anonymous stays theirs.
//
// The UNIQUE index on email is the backstop: if another row already owns the
// email, the UPDATE fails and we report a conflict instead of producing two
// users with the same address.
func (s userStore) SetIdentity(ctx context.Context, id, email, name string) (*model.User, error) {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE users SET email = ?, name = ? WHERE id = ?`,
		email, name, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("user", "email is already linked to another account")
		}
		return nil, fmt.Errorf("sqlite: linking user %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: linking user %s: %w", id, err)
	}
	if n == 0 {
		return nil, apperror.NotFound("user", id)
	}

	return s.GetByID(ctx, id)
}
