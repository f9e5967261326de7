package api

import (
	"net/http"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/scope"
)

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.ownedSubscription(w, r)
	if !ok {
		return
	}

	opts := delivery.ListOpts{
		Offset:  queryInt(r, "offset", 0),
		Limit:   queryInt(r, "limit", 50),
		Success: queryBool(r, "success"),
	}

	records, err := h.herald.Records().ListRecords(r.Context(), sub.ID, opts)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	recID, err := id.ParseRecordID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}

	rec, err := h.herald.Records().GetRecord(r.Context(), recID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if rec.UserID != scope.User(r.Context()) {
		writeErr(w, herald.ErrRecordNotFound)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
