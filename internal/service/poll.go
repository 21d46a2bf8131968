package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/model"
	"github.com/sakif/everypoll/internal/repository"
)

// Validation constants.
const (
	MinAnswers        = 2
	MaxAnswers        = 10
	MaxQuestionLength = 500
	MaxAnswerLength   = 200
	DefaultFeedLimit  = 10
	MaxFeedLimit      = 20
)

// PollService handles poll creation, voting, feeds and cross-reference
// search. Result aggregation lives in ResultService.
type PollService struct {
	polls  repository.PollRepository
	votes  repository.VoteRepository
	logger *slog.Logger
}

// NewPollService creates a PollService.
func NewPollService(polls repository.PollRepository, votes repository.VoteRepository, logger *slog.Logger) *PollService {
	return &PollService{
		polls:  polls,
		votes:  votes,
		logger: logger,
	}
}

// Create validates and saves a new poll. Any resolved user may create polls,
// anonymous ones included. Answers are stored in the exact order submitted.
func (s *PollService) Create(ctx context.Context, authorID, question string, answers []string) (*model.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperror.ValidationFailed("question", "poll question is required")
	}
	if len(question) > MaxQuestionLength {
		return nil, apperror.ValidationFailed("question",
			fmt.Sprintf("poll question must be %d characters or less", MaxQuestionLength))
	}
	if len(answers) < MinAnswers || len(answers) > MaxAnswers {
		return nil, apperror.ValidationFailed("answers",
			fmt.Sprintf("a poll needs between %d and %d answers", MinAnswers, MaxAnswers))
	}

	poll := &model.Poll{
		AuthorID: authorID,
		Question: question,
		Answers:  make([]model.Answer, len(answers)),
	}
	for i, text := range answers {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, apperror.ValidationFailed("answers",
				fmt.Sprintf("answer %d must not be empty", i+1))
		}
		if len(text) > MaxAnswerLength {
			return nil, apperror.ValidationFailed("answers",
				fmt.Sprintf("answer %d must be %d characters or less", i+1, MaxAnswerLength))
		}
		poll.Answers[i] = model.Answer{Text: text}
	}

	if err := s.polls.Create(ctx, poll); err != nil {
		s.logger.Error("failed to create poll",
			slog.String("authorID", authorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating poll: %w", err)
	}

	s.logger.Info("poll created",
		slog.String("id", poll.ID),
		slog.String("authorID", authorID),
		slog.Int("answers", len(poll.Answers)),
	)
	return poll, nil
}

// GetByID retrieves a poll with its answers.
func (s *PollService) GetByID(ctx context.Context, id string) (*model.Poll, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "poll ID is required")
	}
	return s.polls.GetByID(ctx, id)
}

// Vote casts a user's single, final vote on a poll. The answer must belong
// to the poll; a second vote on the same poll fails with Conflict at the
// store's uniqueness constraint and leaves the original vote untouched.
func (s *PollService) Vote(ctx context.Context, userID, pollID, answerID string) (*model.Vote, error) {
	answerID = strings.TrimSpace(answerID)
	if answerID == "" {
		return nil, apperror.ValidationFailed("answerId", "answer ID is required")
	}

	poll, err := s.polls.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	valid := false
	for _, a := range poll.Answers {
		if a.ID == answerID {
			valid = true
			break
		}
	}
	if !valid {
		return nil, apperror.NotFound("answer", answerID)
	}

	vote := &model.Vote{
		PollID:   poll.ID,
		AnswerID: answerID,
		UserID:   userID,
	}
	if err := s.votes.Create(ctx, vote); err != nil {
		return nil, err
	}

	s.logger.Info("vote cast",
		slog.String("pollID", poll.ID),
		slog.String("userID", userID),
	)
	return vote, nil
}

// Feed returns polls newest-first, optionally filtered by a query string.
// Past the end of data it returns an empty list, never an error — callers
// detect end-of-feed by len(result) < limit.
func (s *PollService) Feed(ctx context.Context, offset, limit int, query string) ([]model.Poll, error) {
	opts := clampList(offset, limit, query)
	polls, err := s.polls.List(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list feed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing feed: %w", err)
	}
	return polls, nil
}

// UserPolls returns polls authored by a user, same pagination contract as Feed.
func (s *PollService) UserPolls(ctx context.Context, userID string, offset, limit int) ([]model.Poll, error) {
	polls, err := s.polls.ListByAuthor(ctx, userID, clampList(offset, limit, ""))
	if err != nil {
		return nil, fmt.Errorf("listing authored polls: %w", err)
	}
	return polls, nil
}

// VotedPolls returns polls a user has voted on, same pagination contract as Feed.
func (s *PollService) VotedPolls(ctx context.Context, userID string, offset, limit int) ([]model.Poll, error) {
	polls, err := s.polls.ListVotedBy(ctx, userID, clampList(offset, limit, ""))
	if err != nil {
		return nil, fmt.Errorf("listing voted polls: %w", err)
	}
	return polls, nil
}

// SearchForCrossReference finds candidate polls to cross-reference against,
// excluding the base poll and everything already in the chain so a poll can
// never be crossed against itself or used twice.
func (s *PollService) SearchForCrossReference(ctx context.Context, query string, exclude []string, offset, limit int) ([]model.Poll, error) {
	polls, err := s.polls.Search(ctx, strings.TrimSpace(query), exclude, clampList(offset, limit, ""))
	if err != nil {
		return nil, fmt.Errorf("searching polls: %w", err)
	}
	return polls, nil
}

// clampList normalises pagination input to a sane range.
func clampList(offset, limit int, query string) repository.ListOptions {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}
	if offset < 0 {
		offset = 0
	}
	return repository.ListOptions{Limit: limit, Offset: offset, Query: strings.TrimSpace(query)}
}
