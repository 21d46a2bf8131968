package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/everypoll/internal/auth"
	"github.com/sakif/everypoll/internal/service"
)

// FeedHandler serves the paginated poll listings.
type FeedHandler struct {
	polls  *service.PollService
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(polls *service.PollService, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{polls: polls, logger: logger}
}

// HandleFeed returns the main feed, newest polls first.
//
// HTTP: GET /api/feed?offset=0&limit=10&q=cats
// Callers detect end-of-feed by len(result) < limit — an empty page is a
// normal response, not an error.
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, limit := parsePagination(q.Get("offset"), q.Get("limit"))

	polls, err := h.polls.Feed(r.Context(), offset, limit, q.Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, polls)
}

// HandleMine returns polls authored by the session user.
//
// HTTP: GET /api/feed/mine?offset=0&limit=10
func (h *FeedHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	offset, limit := parsePagination(r.URL.Query().Get("offset"), r.URL.Query().Get("limit"))

	polls, err := h.polls.UserPolls(r.Context(), userID, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, polls)
}

// HandleVoted returns polls the session user has voted on.
//
// HTTP: GET /api/feed/voted?offset=0&limit=10
func (h *FeedHandler) HandleVoted(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	offset, limit := parsePagination(r.URL.Query().Get("offset"), r.URL.Query().Get("limit"))

	polls, err := h.polls.VotedPolls(r.Context(), userID, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, polls)
}
