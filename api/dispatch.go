package api

import (
	"encoding/json"
	"net/http"

	"github.com/xraph/herald/scope"
)

type dispatchRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// dispatch queues an event for the calling user. Delivery happens later, so
// the response only confirms acceptance.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}

	if err := h.herald.Dispatch(r.Context(), scope.User(r.Context()), req.Event, data); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
