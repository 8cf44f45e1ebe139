package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

type VoteHandler struct {
	sessions ports.SessionRegistry
}

func NewVoteHandler(sessions ports.SessionRegistry) *VoteHandler {
	return &VoteHandler{
		sessions: sessions,
	}
}

func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	participantID, ok := participantFrom(r)
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "unidentified", "missing participant")
		return
	}

	vote, err := h.sessions.Session(participantID).CastVote(r.Context(), itemID)
	if err != nil {
		writeVoteError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, vote)
}

func writeVoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadyVoted):
		errorJSON(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, domain.ErrVoteInProgress):
		errorJSON(w, http.StatusConflict, "vote_in_progress", err.Error())
	case errors.Is(err, domain.ErrItemNotFound):
		errorJSON(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, domain.ErrValidation):
		errorJSON(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, domain.ErrTransactionAborted):
		errorJSON(w, http.StatusServiceUnavailable, "transaction_aborted", err.Error())
	default:
		errorJSON(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
