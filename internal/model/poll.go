package model

import "time"

// Poll is a question with a fixed set of answers. Polls are immutable after
// creation — no editing the question, no adding or removing answers — which
// is what makes cross-referencing old results against each other sound.
type Poll struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"createdAt"`
	Answers   []Answer  `json:"answers,omitempty"`
}

// Answer is one option of a poll. Ordinal preserves the order the author
// submitted the answers in; results are always reported in this order,
// never re-sorted by count.
type Answer struct {
	ID      string `json:"id"`
	PollID  string `json:"pollId"`
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
}

// Vote records one user's single, irrevocable choice on a poll.
// The store enforces UNIQUE(poll_id, user_id) — a second vote on the same
// poll fails at the constraint, not in application code, so two concurrent
// requests can never both land.
type Vote struct {
	ID        string    `json:"id"`
	PollID    string    `json:"pollId"`
	AnswerID  string    `json:"answerId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChainLink is one cross-reference constraint: only voters who picked
// AnswerID on PollID are counted. A chain is an ordered list of these.
type ChainLink struct {
	PollID   string `json:"pollId"`
	AnswerID string `json:"answerId"`
}
