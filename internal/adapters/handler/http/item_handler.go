package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

type ItemHandler struct {
	list     ports.ListReader
	sessions ports.SessionRegistry
}

func NewItemHandler(list ports.ListReader, sessions ports.SessionRegistry) *ItemHandler {
	return &ItemHandler{
		list:     list,
		sessions: sessions,
	}
}

const maxCreateItemBody = 4 << 10

type createItemRequest struct {
	Name string `json:"name"`
}

type itemView struct {
	domain.Item
	Mine   bool `json:"mine"`
	Voting bool `json:"voting"`
}

type listResponse struct {
	State   domain.ListState `json:"state"`
	Version uint64           `json:"version"`
	Error   string           `json:"error,omitempty"`
	Items   []itemView       `json:"items"`
}

func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	participantID, ok := participantFrom(r)
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "unidentified", "missing participant")
		return
	}

	resp := h.view(participantID)
	if resp.State == domain.ListError {
		jsonResponse(w, http.StatusServiceUnavailable, resp)
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (h *ItemHandler) view(participantID string) listResponse {
	session := h.sessions.Session(participantID)
	items := h.list.CurrentList()

	resp := listResponse{
		State:   h.list.State(),
		Version: h.list.Version(),
		Items:   make([]itemView, 0, len(items)),
	}
	if err := h.list.Err(); err != nil {
		resp.Error = err.Error()
	}

	for _, item := range items {
		resp.Items = append(resp.Items, itemView{
			Item:   item,
			Mine:   item.CreatorID == participantID,
			Voting: session.Voting(item.ID),
		})
	}
	return resp
}

func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	participantID, ok := participantFrom(r)
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "unidentified", "missing participant")
		return
	}

	var req createItemRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxCreateItemBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	item, err := h.sessions.Session(participantID).CreateItem(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			errorJSON(w, http.StatusBadRequest, "validation", err.Error())
			return
		}

		errorJSON(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

type meResponse struct {
	ParticipantID string `json:"participant_id"`
}

func (h *ItemHandler) Me(w http.ResponseWriter, r *http.Request) {
	participantID, ok := participantFrom(r)
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "unidentified", "missing participant")
		return
	}
	jsonResponse(w, http.StatusOK, meResponse{ParticipantID: participantID})
}
