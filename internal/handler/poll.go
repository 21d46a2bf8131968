package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/everypoll/internal/auth"
	"github.com/sakif/everypoll/internal/service"
)

// PollHandler serves poll creation, voting, result views and
// cross-reference search. All routes sit behind auth.RequireUser, so a
// resolved user ID is always in the context.
type PollHandler struct {
	polls   *service.PollService
	results *service.ResultService
	logger  *slog.Logger
}

// NewPollHandler creates a PollHandler.
func NewPollHandler(polls *service.PollService, results *service.ResultService, logger *slog.Logger) *PollHandler {
	return &PollHandler{
		polls:   polls,
		results: results,
		logger:  logger,
	}
}

// CreatePollRequest is the body of POST /api/poll.
type CreatePollRequest struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
}

// VoteRequest is the body of POST /api/poll/{id}/vote.
type VoteRequest struct {
	AnswerID string `json:"answerId"`
}

// HandleCreate creates a poll.
//
// HTTP: POST /api/poll
// Body: {"question": "...", "answers": ["...", "..."]} (2–10 answers)
func (h *PollHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req CreatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid poll JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "validation_error", Message: "invalid JSON body",
		})
		return
	}

	poll, err := h.polls.Create(r.Context(), userID, req.Question, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, poll)
}

// HandleVote casts the user's vote on a poll.
//
// HTTP: POST /api/poll/{id}/vote
// Body: {"answerId": "..."}
// A second vote on the same poll returns 409 and leaves the original intact.
func (h *PollHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	pollID := r.PathValue("id")

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "validation_error", Message: "invalid JSON body",
		})
		return
	}

	vote, err := h.polls.Vote(r.Context(), userID, pollID, req.AnswerID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, vote)
}

// HandleGet returns the result view of a poll under a chain.
//
// HTTP: GET /api/poll/{id}?p1=..&a1=..&p2=..
// Complete pN/aN pairs constrain the counted voters; a trailing pN without
// aN requests the per-base-answer preview for that candidate poll.
func (h *PollHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	pollID := r.PathValue("id")

	chain, candidateID, err := parseChain(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.results.GetPollResult(r.Context(), userID, pollID, chain, candidateID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// HandleSearch finds candidate polls for cross-referencing, excluding the
// base poll and everything already in the chain.
//
// HTTP: GET /api/poll/{id}/search?q=..&p1=..&a1=..
func (h *PollHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")

	q := r.URL.Query()
	chain, candidateID, err := parseChain(q)
	if err != nil {
		writeError(w, err)
		return
	}

	offset, limit := parsePagination(q.Get("offset"), q.Get("limit"))
	polls, err := h.polls.SearchForCrossReference(
		r.Context(),
		q.Get("q"),
		chainExclusions(pollID, chain, candidateID),
		offset, limit,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, polls)
}

// parsePagination reads offset/limit query values, tolerating absence and
// garbage — the service clamps the final range anyway.
func parsePagination(offsetStr, limitStr string) (offset, limit int) {
	offset, _ = strconv.Atoi(offsetStr)
	limit, _ = strconv.Atoi(limitStr)
	return offset, limit
}
