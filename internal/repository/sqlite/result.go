package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/model"
	"github.com/sakif/everypoll/internal/repository"
)

var _ repository.ResultRepository = (*DB)(nil)

// CountVotes tallies a poll's answers over the voters satisfying every chain
// constraint. With an empty chain that is simply everyone who voted.
//
// The voter set S is expressed as stacked IN-subqueries, one per chain link:
//
//	v.user_id IN (SELECT user_id FROM votes WHERE poll_id = ? AND answer_id = ?)
//
// Each link can only shrink S, which gives the monotonicity the result view
// relies on: constrained counts are never larger than unconstrained ones.
func (db *DB) CountVotes(ctx context.Context, pollID string, chain []model.ChainLink) (*model.Distribution, error) {
	if err := db.validateChain(ctx, chain); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT a.id, a.poll_id, a.ordinal, a.text, COUNT(v.id)
		FROM answers a
		LEFT JOIN votes v ON v.answer_id = a.id`)
	args := []any{}

	for _, link := range chain {
		sb.WriteString(`
		 AND v.user_id IN (SELECT user_id FROM votes WHERE poll_id = ? AND answer_id = ?)`)
		args = append(args, link.PollID, link.AnswerID)
	}

	sb.WriteString(`
		WHERE a.poll_id = ?
		GROUP BY a.id
		ORDER BY a.ordinal`)
	args = append(args, pollID)

	return db.queryDistribution(ctx, pollID, sb.String(), args...)
}

// CrossDistribution tallies targetPollID over voters who satisfy the chain
// and also voted baseAnswerID on basePollID. This is deliberately one small
// independent query — the service calls it once per base answer to produce
// the per-answer preview charts.
func (db *DB) CrossDistribution(ctx context.Context, basePollID, baseAnswerID, targetPollID string, chain []model.ChainLink) (*model.Distribution, error) {
	// Treat the base answer as one more link: same shape, same validation.
	full := append(append([]model.ChainLink{}, chain...), model.ChainLink{
		PollID:   basePollID,
		AnswerID: baseAnswerID,
	})
	return db.CountVotes(ctx, targetPollID, full)
}

// validateChain checks every link against the store: the poll must exist and
// the answer must belong to it. Any bad link fails the whole request — a
// partially-valid chain would silently compute the wrong population.
func (db *DB) validateChain(ctx context.Context, chain []model.ChainLink) error {
	for _, link := range chain {
		var pollID string
		err := db.conn.QueryRowContext(ctx,
			`SELECT poll_id FROM answers WHERE id = ?`, link.AnswerID,
		).Scan(&pollID)
		if err == sql.ErrNoRows {
			return apperror.NotFound("answer", link.AnswerID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: validating chain answer %s: %w", link.AnswerID, err)
		}
		if pollID != link.PollID {
			// The poll may or may not exist; either way the pair is bogus.
			if exists, err := db.pollExists(ctx, link.PollID); err != nil {
				return err
			} else if !exists {
				return apperror.NotFound("poll", link.PollID)
			}
			return apperror.ValidationFailed("chain",
				fmt.Sprintf("answer %s does not belong to poll %s", link.AnswerID, link.PollID))
		}
	}
	return nil
}

func (db *DB) pollExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM polls WHERE id = ?`, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking poll %s: %w", id, err)
	}
	return true, nil
}

// queryDistribution runs an answer-tally query and assembles the
// Distribution. Zero total is reported as 0% per answer, never NaN.
func (db *DB) queryDistribution(ctx context.Context, pollID, query string, args ...any) (*model.Distribution, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting votes for poll %s: %w", pollID, err)
	}
	defer rows.Close()

	dist := &model.Distribution{PollID: pollID, Counts: []model.AnswerCount{}}
	for rows.Next() {
		var ac model.AnswerCount
		if err := rows.Scan(
			&ac.Answer.ID, &ac.Answer.PollID, &ac.Answer.Ordinal, &ac.Answer.Text, &ac.Count,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning answer count: %w", err)
		}
		dist.Total += ac.Count
		dist.Counts = append(dist.Counts, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: counting votes for poll %s: %w", pollID, err)
	}

	// A poll always has answers; zero rows means the poll id itself is bad.
	if len(dist.Counts) == 0 {
		if exists, err := db.pollExists(ctx, pollID); err != nil {
			return nil, err
		} else if !exists {
			return nil, apperror.NotFound("poll", pollID)
		}
	}

	if dist.Total > 0 {
		for i := range dist.Counts {
			dist.Counts[i].Percent = float64(dist.Counts[i].Count) / float64(dist.Total) * 100
		}
	}

	return dist, nil
}
