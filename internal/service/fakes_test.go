package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/model"
	"github.com/sakif/everypoll/internal/repository"
)

// In-memory fakes for the repository interfaces. The services only see the
// interfaces, so these swap in for the SQLite store without the services
// noticing. Storage-level behavior the services rely on (vote uniqueness,
// NotFound on misses) is reproduced here.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// -------------------------------------------------------------------------
// users
// -------------------------------------------------------------------------

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *user
	return &result, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, user := range f.users {
		if user.Email != nil && *user.Email == email {
			result := *user
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) SetIdentity(_ context.Context, id, email, name string) (*model.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	for _, other := range f.users {
		if other.ID != id && other.Email != nil && *other.Email == email {
			return nil, apperror.Conflict("user", "email already in use")
		}
	}
	user.Email = &email
	user.Name = &name
	result := *user
	return &result, nil
}

// -------------------------------------------------------------------------
// sessions
// -------------------------------------------------------------------------

type fakeSessionRepo struct {
	sessions map[string]*model.Session
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.Session)}
}

func (f *fakeSessionRepo) Create(_ context.Context, userID string, ttl time.Duration) (*model.Session, error) {
	f.nextID++
	now := time.Now()
	sess := &model.Session{
		ID:        fmt.Sprintf("sess-%d", f.nextID),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	stored := *sess
	f.sessions[sess.ID] = &stored
	return sess, nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	result := *sess
	return &result, nil
}

func (f *fakeSessionRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.sessions[id]; !ok {
		return apperror.NotFound("session", id)
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, sess := range f.sessions {
		if sess.Expired(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

// -------------------------------------------------------------------------
// polls
// -------------------------------------------------------------------------

type fakePollRepo struct {
	polls  map[string]*model.Poll
	order  []string // insertion order, newest last
	nextID int
	votes  *fakeVoteRepo // for ListVotedBy; may be nil
}

func newFakePollRepo() *fakePollRepo {
	return &fakePollRepo{polls: make(map[string]*model.Poll)}
}

func (f *fakePollRepo) Create(_ context.Context, poll *model.Poll) error {
	f.nextID++
	poll.ID = fmt.Sprintf("poll-%d", f.nextID)
	poll.CreatedAt = time.Now()
	for i := range poll.Answers {
		poll.Answers[i].ID = fmt.Sprintf("%s-a%d", poll.ID, i)
		poll.Answers[i].PollID = poll.ID
		poll.Answers[i].Ordinal = i
	}
	stored := *poll
	stored.Answers = append([]model.Answer(nil), poll.Answers...)
	f.polls[poll.ID] = &stored
	f.order = append(f.order, poll.ID)
	return nil
}

func (f *fakePollRepo) GetByID(_ context.Context, id string) (*model.Poll, error) {
	poll, ok := f.polls[id]
	if !ok {
		return nil, apperror.NotFound("poll", id)
	}
	result := *poll
	result.Answers = append([]model.Answer(nil), poll.Answers...)
	return &result, nil
}

func (f *fakePollRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Poll, error) {
	return f.page(f.newestFirst(), opts), nil
}

func (f *fakePollRepo) ListByAuthor(_ context.Context, authorID string, opts repository.ListOptions) ([]model.Poll, error) {
	var matched []model.Poll
	for _, poll := range f.newestFirst() {
		if poll.AuthorID == authorID {
			matched = append(matched, poll)
		}
	}
	return f.page(matched, opts), nil
}

func (f *fakePollRepo) ListVotedBy(_ context.Context, userID string, opts repository.ListOptions) ([]model.Poll, error) {
	var matched []model.Poll
	for _, poll := range f.newestFirst() {
		if f.votes != nil && f.votes.hasVote(poll.ID, userID) {
			matched = append(matched, poll)
		}
	}
	return f.page(matched, opts), nil
}

func (f *fakePollRepo) Search(_ context.Context, query string, exclude []string, opts repository.ListOptions) ([]model.Poll, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	var matched []model.Poll
	for _, poll := range f.newestFirst() {
		if excluded[poll.ID] {
			continue
		}
		if query == "" || strings.Contains(strings.ToLower(poll.Question), strings.ToLower(query)) {
			matched = append(matched, poll)
		}
	}
	return f.page(matched, opts), nil
}

func (f *fakePollRepo) newestFirst() []model.Poll {
	result := make([]model.Poll, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		poll := f.polls[f.order[i]]
		copied := *poll
		copied.Answers = append([]model.Answer(nil), poll.Answers...)
		result = append(result, copied)
	}
	return result
}

func (f *fakePollRepo) page(polls []model.Poll, opts repository.ListOptions) []model.Poll {
	if opts.Query != "" {
		var filtered []model.Poll
		for _, poll := range polls {
			if strings.Contains(strings.ToLower(poll.Question), strings.ToLower(opts.Query)) {
				filtered = append(filtered, poll)
			}
		}
		polls = filtered
	}
	if opts.Offset >= len(polls) {
		return []model.Poll{}
	}
	polls = polls[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(polls) {
		polls = polls[:opts.Limit]
	}
	return polls
}

// -------------------------------------------------------------------------
// votes
// -------------------------------------------------------------------------

type fakeVoteRepo struct {
	votes  map[string]*model.Vote // keyed by pollID + "/" + userID
	nextID int
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{votes: make(map[string]*model.Vote)}
}

func voteKey(pollID, userID string) string { return pollID + "/" + userID }

func (f *fakeVoteRepo) Create(_ context.Context, vote *model.Vote) error {
	key := voteKey(vote.PollID, vote.UserID)
	if _, ok := f.votes[key]; ok {
		return apperror.Conflict("vote", "user has already voted on this poll")
	}
	f.nextID++
	vote.ID = fmt.Sprintf("vote-%d", f.nextID)
	vote.CreatedAt = time.Now()
	stored := *vote
	f.votes[key] = &stored
	return nil
}

func (f *fakeVoteRepo) GetUserVote(_ context.Context, pollID, userID string) (*model.Vote, error) {
	vote, ok := f.votes[voteKey(pollID, userID)]
	if !ok {
		return nil, apperror.NotFound("vote", voteKey(pollID, userID))
	}
	result := *vote
	return &result, nil
}

func (f *fakeVoteRepo) hasVote(pollID, userID string) bool {
	_, ok := f.votes[voteKey(pollID, userID)]
	return ok
}

// -------------------------------------------------------------------------
// results
// -------------------------------------------------------------------------

// fakeResultRepo counts votes the slow, obvious way: scan every vote and
// check the chain constraints per voter.
type fakeResultRepo struct {
	polls *fakePollRepo
	votes *fakeVoteRepo
}

func (f *fakeResultRepo) CountVotes(ctx context.Context, pollID string, chain []model.ChainLink) (*model.Distribution, error) {
	poll, err := f.polls.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	dist := &model.Distribution{PollID: pollID, Counts: make([]model.AnswerCount, len(poll.Answers))}
	byAnswer := make(map[string]int)
	for _, vote := range f.votes.votes {
		if vote.PollID != pollID {
			continue
		}
		if !f.satisfies(vote.UserID, chain) {
			continue
		}
		byAnswer[vote.AnswerID]++
		dist.Total++
	}
	for i, answer := range poll.Answers {
		count := byAnswer[answer.ID]
		ac := model.AnswerCount{Answer: answer, Count: count}
		if dist.Total > 0 {
			ac.Percent = float64(count) / float64(dist.Total) * 100
		}
		dist.Counts[i] = ac
	}
	return dist, nil
}

func (f *fakeResultRepo) CrossDistribution(ctx context.Context, basePollID, baseAnswerID, targetPollID string, chain []model.ChainLink) (*model.Distribution, error) {
	full := append(append([]model.ChainLink(nil), chain...), model.ChainLink{PollID: basePollID, AnswerID: baseAnswerID})
	return f.CountVotes(ctx, targetPollID, full)
}

func (f *fakeResultRepo) satisfies(userID string, chain []model.ChainLink) bool {
	for _, link := range chain {
		vote, ok := f.votes.votes[voteKey(link.PollID, userID)]
		if !ok || vote.AnswerID != link.AnswerID {
			return false
		}
	}
	return true
}

// -------------------------------------------------------------------------
// wiring helpers
// -------------------------------------------------------------------------

func newTestPollService(t *testing.T) (*PollService, *fakePollRepo, *fakeVoteRepo) {
	t.Helper()
	polls := newFakePollRepo()
	votes := newFakeVoteRepo()
	polls.votes = votes
	svc := NewPollService(polls, votes, testLogger())
	return svc, polls, votes
}

func newTestResultService(t *testing.T) (*ResultService, *fakePollRepo, *fakeVoteRepo) {
	t.Helper()
	polls := newFakePollRepo()
	votes := newFakeVoteRepo()
	polls.votes = votes
	results := &fakeResultRepo{polls: polls, votes: votes}
	svc := NewResultService(polls, votes, results, testLogger())
	return svc, polls, votes
}
