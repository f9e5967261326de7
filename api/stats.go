package api

import (
	"net/http"
	"time"

	"github.com/xraph/herald/scope"
	"github.com/xraph/herald/subscription"
)

type subscriptionStats struct {
	ID               string     `json:"id"`
	URL              string     `json:"url"`
	Active           bool       `json:"active"`
	TotalDeliveries  int64      `json:"total_deliveries"`
	FailedDeliveries int64      `json:"failed_deliveries"`
	LastStatusCode   int        `json:"last_status_code,omitempty"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at,omitempty"`
}

type statsResponse struct {
	Subscriptions    []subscriptionStats `json:"subscriptions"`
	TotalDeliveries  int64               `json:"total_deliveries"`
	FailedDeliveries int64               `json:"failed_deliveries"`
	QueueDepth       int64               `json:"queue_depth"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subs, err := h.herald.Subscriptions().List(ctx, scope.User(ctx), subscription.ListOpts{})
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := statsResponse{Subscriptions: make([]subscriptionStats, 0, len(subs))}
	for _, sub := range subs {
		resp.Subscriptions = append(resp.Subscriptions, subscriptionStats{
			ID:               sub.ID.String(),
			URL:              sub.URL,
			Active:           sub.Active,
			TotalDeliveries:  sub.TotalDeliveries,
			FailedDeliveries: sub.FailedDeliveries,
			LastStatusCode:   sub.LastStatusCode,
			LastTriggeredAt:  sub.LastTriggeredAt,
		})
		resp.TotalDeliveries += sub.TotalDeliveries
		resp.FailedDeliveries += sub.FailedDeliveries
	}

	depth, err := h.herald.Queue().Len(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp.QueueDepth = depth

	writeJSON(w, http.StatusOK, resp)
}
