package repository

import (
	"context"
	"time"

	"github.com/sakif/everypoll/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	Query  string // optional case-insensitive substring match on the question
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// SetIdentity populates email/name in place; the ID never changes.
	SetIdentity(ctx context.Context, id, email, name string) (*model.User, error)
}

type SessionRepository interface {
	Create(ctx context.Context, userID string, ttl time.Duration) (*model.Session, error)
	GetByID(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type PollRepository interface {
	// Create persists the poll and its answers in one transaction,
	// preserving answer submission order.
	Create(ctx context.Context, poll *model.Poll) error
	GetByID(ctx context.Context, id string) (*model.Poll, error)
	List(ctx context.Context, opts ListOptions) ([]model.Poll, error)
	ListByAuthor(ctx context.Context, authorID string, opts ListOptions) ([]model.Poll, error)
	ListVotedBy(ctx context.Context, userID string, opts ListOptions) ([]model.Poll, error)
	Search(ctx context.Context, query string, exclude []string, opts ListOptions) ([]model.Poll, error)
}

type VoteRepository interface {
	// Create inserts the vote; a duplicate (poll, user) pair fails with
	// apperror.ErrConflict via the store's uniqueness constraint.
	Create(ctx context.Context, vote *model.Vote) error
	GetUserVote(ctx context.Context, pollID, userID string) (*model.Vote, error)
}

// ResultRepository is the aggregation engine's storage contract. Chain links
// are validated before any counting: a link naming an unknown poll or an
// answer outside that poll fails the whole call.
type ResultRepository interface {
	// CountVotes tallies the poll's answers over voters satisfying every
	// chain constraint (all voters when the chain is empty).
	CountVotes(ctx context.Context, pollID string, chain []model.ChainLink) (*model.Distribution, error)
	// CrossDistribution tallies targetPollID over voters who satisfy the
	// chain AND voted baseAnswerID on basePollID. Called once per base
	// answer to build the per-answer preview charts.
	CrossDistribution(ctx context.Context, basePollID, baseAnswerID, targetPollID string, chain []model.ChainLink) (*model.Distribution, error)
}
