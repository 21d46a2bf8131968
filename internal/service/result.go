package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/model"
	"github.com/sakif/everypoll/internal/repository"
)

// ResultService assembles PollResultViews: the aggregation engine's numbers
// plus the visibility rules about who gets to see them.
type ResultService struct {
	polls   repository.PollRepository
	votes   repository.VoteRepository
	results repository.ResultRepository
	logger  *slog.Logger
}

// NewResultService creates a ResultService.
func NewResultService(
	polls repository.PollRepository,
	votes repository.VoteRepository,
	results repository.ResultRepository,
	logger *slog.Logger,
) *ResultService {
	return &ResultService{
		polls:   polls,
		votes:   votes,
		results: results,
		logger:  logger,
	}
}

// GetPollResult computes the result view for a poll under a chain of
// cross-reference constraints, optionally previewing a candidate poll.
//
// VISIBILITY: the poll itself (question + answers) is always returned so the
// viewer can vote. Numbers are included only once the viewer has voted on
// the base poll, and a chain may only be used if the viewer has voted on
// every link in it — the recursive "vote to see the next level" rule.
//
// Any chain entry naming an unknown poll/answer, or an answer that is not
// the named poll's, fails the whole request. No partial results.
func (s *ResultService) GetPollResult(ctx context.Context, viewerID, pollID string, chain []model.ChainLink, candidateID string) (*model.PollResultView, error) {
	poll, err := s.polls.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	view := &model.PollResultView{Poll: *poll, Chain: chain}

	if viewerID != "" {
		vote, err := s.votes.GetUserVote(ctx, pollID, viewerID)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("loading viewer vote: %w", err)
		}
		view.UserVote = vote
	}

	if view.UserVote == nil {
		// Not voted yet: no numbers, and no peeking through a chain either.
		return view, nil
	}

	if err := s.checkChainVisibility(ctx, viewerID, chain); err != nil {
		return nil, err
	}

	results, err := s.results.CountVotes(ctx, pollID, chain)
	if err != nil {
		return nil, err
	}
	view.Results = results

	if candidateID != "" {
		cross, err := s.crossReference(ctx, poll, chain, candidateID)
		if err != nil {
			return nil, err
		}
		view.CrossReference = cross
	}

	return view, nil
}

// crossReference builds the per-base-answer preview: one independent
// distribution of the candidate poll for each answer of the base poll.
func (s *ResultService) crossReference(ctx context.Context, base *model.Poll, chain []model.ChainLink, candidateID string) (*model.CrossReference, error) {
	if candidateID == base.ID {
		return nil, apperror.ValidationFailed("candidate", "a poll cannot be cross-referenced against itself")
	}
	for _, link := range chain {
		if link.PollID == candidateID {
			return nil, apperror.ValidationFailed("candidate", "poll is already part of the chain")
		}
	}

	candidate, err := s.polls.GetByID(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	cross := &model.CrossReference{
		Poll:          *candidate,
		Distributions: make([]model.Distribution, len(base.Answers)),
	}
	for i, answer := range base.Answers {
		dist, err := s.results.CrossDistribution(ctx, base.ID, answer.ID, candidate.ID, chain)
		if err != nil {
			return nil, err
		}
		cross.Distributions[i] = *dist
	}

	s.logger.Debug("cross-reference computed",
		slog.String("basePollID", base.ID),
		slog.String("candidateID", candidate.ID),
		slog.Int("charts", len(cross.Distributions)),
	)
	return cross, nil
}

// checkChainVisibility enforces the recursive gate: the viewer must have
// voted on every poll in the chain to aggregate through it.
func (s *ResultService) checkChainVisibility(ctx context.Context, viewerID string, chain []model.ChainLink) error {
	for _, link := range chain {
		_, err := s.votes.GetUserVote(ctx, link.PollID, viewerID)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.Forbidden(
				fmt.Sprintf("vote on poll %s before cross-referencing it", link.PollID))
		}
		if err != nil {
			return fmt.Errorf("checking chain visibility: %w", err)
		}
	}
	return nil
}
