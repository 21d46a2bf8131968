package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/model"
	"github.com/sakif/everypoll/internal/repository"
)

var _ repository.PollRepository = pollStore{}

type pollStore struct{ db *DB }

// Polls returns the poll repository view of the database.
func (db *DB) Polls() repository.PollRepository { return pollStore{db} }

// Create persists a poll and its answers in one transaction. The answer
// slice order becomes the ordinal column — results are always reported in
// this order, so it must survive the round trip exactly.
func (s pollStore) Create(ctx context.Context, poll *model.Poll) error {
	poll.ID = xid.New().String()
	poll.CreatedAt = time.Now()

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning poll transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO polls (id, author_id, question, created_at) VALUES (?, ?, ?, ?)`,
		poll.ID, poll.AuthorID, poll.Question, poll.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting poll: %w", err)
	}

	for i := range poll.Answers {
		a := &poll.Answers[i]
		a.ID = xid.New().String()
		a.PollID = poll.ID
		a.Ordinal = i

		_, err = tx.ExecContext(ctx,
			`INSERT INTO answers (id, poll_id, ordinal, text) VALUES (?, ?, ?, ?)`,
			a.ID, a.PollID, a.Ordinal, a.Text,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting answer %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing poll: %w", err)
	}
	return nil
}

// GetByID retrieves a poll with its answers in creation order.
func (s pollStore) GetByID(ctx context.Context, id string) (*model.Poll, error) {
	var p model.Poll
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id, author_id, question, created_at FROM polls WHERE id = ?`, id,
	).Scan(&p.ID, &p.AuthorID, &p.Question, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("poll", id)
		}
		return nil, fmt.Errorf("sqlite: getting poll %s: %w", id, err)
	}

	answers, err := s.answersFor(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Answers = answers
	return &p, nil
}

// answersFor loads a poll's answers ordered by ordinal.
func (s pollStore) answersFor(ctx context.Context, pollID string) ([]model.Answer, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, poll_id, ordinal, text FROM answers WHERE poll_id = ? ORDER BY ordinal`,
		pollID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing answers for poll %s: %w", pollID, err)
	}
	defer rows.Close()

	answers := []model.Answer{}
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.PollID, &a.Ordinal, &a.Text); err != nil {
			return nil, fmt.Errorf("sqlite: scanning answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// List returns polls newest-first, optionally filtered by a case-insensitive
// substring match on the question.
func (s pollStore) List(ctx context.Context, opts repository.ListOptions) ([]model.Poll, error) {
	query := `SELECT id, author_id, question, created_at FROM polls`
	args := []any{}
	if opts.Query != "" {
		// LIKE is case-insensitive for ASCII in SQLite by default.
		query += ` WHERE question LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(opts.Query)+"%")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	return s.queryPolls(ctx, query, args...)
}

// ListByAuthor returns polls authored by a user, newest-first.
func (s pollStore) ListByAuthor(ctx context.Context, authorID string, opts repository.ListOptions) ([]model.Poll, error) {
	return s.queryPolls(ctx,
		`SELECT id, author_id, question, created_at FROM polls
		 WHERE author_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		authorID, opts.Limit, opts.Offset,
	)
}

// ListVotedBy returns polls a user has voted on, newest-first by poll age.
func (s pollStore) ListVotedBy(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Poll, error) {
	return s.queryPolls(ctx,
		`SELECT p.id, p.author_id, p.question, p.created_at FROM polls p
		 JOIN votes v ON v.poll_id = p.id
		 WHERE v.user_id = ?
		 ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset,
	)
}

// Search finds cross-reference candidates: polls matching the query, minus
// the base poll and every poll already in the chain.
func (s pollStore) Search(ctx context.Context, query string, exclude []string, opts repository.ListOptions) ([]model.Poll, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, author_id, question, created_at FROM polls WHERE 1=1`)
	args := []any{}

	if query != "" {
		sb.WriteString(` AND question LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(query)+"%")
	}
	if len(exclude) > 0 {
		sb.WriteString(` AND id NOT IN (?` + strings.Repeat(",?", len(exclude)-1) + `)`)
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	args = append(args, opts.Limit, opts.Offset)

	return s.queryPolls(ctx, sb.String(), args...)
}

func (s pollStore) queryPolls(ctx context.Context, query string, args ...any) ([]model.Poll, error) {
	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing polls: %w", err)
	}
	defer rows.Close()

	polls := []model.Poll{}
	for rows.Next() {
		var p model.Poll
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Question, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning poll: %w", err)
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: listing polls: %w", err)
	}

	for i := range polls {
		answers, err := s.answersFor(ctx, polls[i].ID)
		if err != nil {
			return nil, err
		}
		polls[i].Answers = answers
	}
	return polls, nil
}

// escapeLike neutralises LIKE wildcards in user input so "50%" matches the
// literal text. The backslash escape must be declared in the query via
// ESCAPE — SQLite's default LIKE has no escape character.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
