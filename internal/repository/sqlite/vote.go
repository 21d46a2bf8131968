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

var _ repository.VoteRepository = voteStore{}

type voteStore struct{ db *DB }

// Votes returns the vote repository view of the database.
func (db *DB) Votes() repository.VoteRepository { return voteStore{db} }

// Create inserts a vote. The UNIQUE(poll_id, user_id) constraint is the
// atomic check-then-insert: two concurrent votes from the same user race at
// the index, and exactly one wins. No read-before-write in application code.
func (s voteStore) Create(ctx context.Context, vote *model.Vote) error {
	vote.ID = xid.New().String()
	vote.CreatedAt = time.Now()

	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO votes (id, poll_id, answer_id, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		vote.ID, vote.PollID, vote.AnswerID, vote.UserID, vote.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("vote", "user has already voted on this poll")
		}
		return fmt.Errorf("sqlite: inserting vote: %w", err)
	}
	return nil
}

// GetUserVote returns the vote a user cast on a poll, or ErrNotFound if they
// have not voted. Callers use the distinction to gate result visibility.
func (s voteStore) GetUserVote(ctx context.Context, pollID, userID string) (*model.Vote, error) {
	var v model.Vote
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id, poll_id, answer_id, user_id, created_at
		 FROM votes WHERE poll_id = ? AND user_id = ?`,
		pollID, userID,
	).Scan(&v.ID, &v.PollID, &v.AnswerID, &v.UserID, &v.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("vote", pollID)
		}
		return nil, fmt.Errorf("sqlite: getting vote: %w", err)
	}
	return &v, nil
}
