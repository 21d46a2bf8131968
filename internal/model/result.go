package model

// AnswerCount is one bar of a results chart: an answer plus how many of the
// counted voters picked it. Percent is count/total for the same voter set,
// with zero total reported as 0 (never NaN).
type AnswerCount struct {
	Answer  Answer  `json:"answer"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Distribution is the vote breakdown of one poll over some voter population.
// Counts follow the poll's answer ordinals.
type Distribution struct {
	PollID string        `json:"pollId"`
	Total  int           `json:"total"`
	Counts []AnswerCount `json:"counts"`
}

// CrossReference is the per-base-answer preview for a candidate poll: for
// each answer of the base poll there is one independent distribution of the
// candidate poll, restricted to voters who chose that base answer (and who
// satisfy the rest of the chain). N base answers means N charts.
type CrossReference struct {
	Poll          Poll           `json:"poll"`
	Distributions []Distribution `json:"distributions"` // indexed like the base answers
}

// PollResultView is the full response for viewing a poll under a chain.
//
// Results and CrossReference are nil until the viewer has voted on the base
// poll — the poll itself (question + answers) is always visible so the
// viewer can cast their vote, but the numbers stay hidden.
type PollResultView struct {
	Poll           Poll            `json:"poll"`
	UserVote       *Vote           `json:"userVote,omitempty"`
	Chain          []ChainLink     `json:"chain,omitempty"`
	Results        *Distribution   `json:"results,omitempty"`
	CrossReference *CrossReference `json:"crossReference,omitempty"`
}
