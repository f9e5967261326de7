package api

import (
	"net/http"

	"github.com/xraph/herald"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/scope"
	"github.com/xraph/herald/subscription"
)

type createSubscriptionRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret,omitempty"`
	GenerateSecret bool              `json:"generate_secret,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Events         []string          `json:"events"`
	RetryCount     int               `json:"retry_count,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// subscriptionWithSecret reveals the secret once, on create and rotate.
type subscriptionWithSecret struct {
	*subscription.Subscription
	Secret string `json:"secret,omitempty"`
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.herald.Subscriptions().Create(r.Context(), subscription.Input{
		UserID:         scope.User(r.Context()),
		Name:           req.Name,
		Description:    req.Description,
		URL:            req.URL,
		Secret:         req.Secret,
		GenerateSecret: req.GenerateSecret,
		Headers:        req.Headers,
		Events:         req.Events,
		RetryCount:     req.RetryCount,
		TimeoutSeconds: req.TimeoutSeconds,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, subscriptionWithSecret{Subscription: sub, Secret: sub.Secret})
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	opts := subscription.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		Active: queryBool(r, "active"),
	}

	subs, err := h.herald.Subscriptions().List(r.Context(), scope.User(r.Context()), opts)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.ownedSubscription(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) updateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.ownedSubscription(w, r)
	if !ok {
		return
	}

	var req subscription.UpdateInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.herald.Subscriptions().Update(r.Context(), sub.ID, req)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.ownedSubscription(w, r)
	if !ok {
		return
	}

	if err := h.herald.Subscriptions().Delete(r.Context(), sub.ID); err != nil {
		writeErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) enableSubscription(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) disableSubscription(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	sub, ok := h.ownedSubscription(w, r)
	if !ok {
		return
	}

	if err := h.herald.Subscriptions().SetActive(r.Context(), sub.ID, active); err != nil {
		writeErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.ownedSubscription(w, r)
	if !ok {
		return
	}

	secret, err := h.herald.Subscriptions().RotateSecret(r.Context(), sub.ID)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

func (h *Handler) testSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.ownedSubscription(w, r)
	if !ok {
		return
	}

	rec, err := h.herald.SendTest(r.Context(), sub.ID)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ownedSubscription loads the {id} subscription and checks it belongs to the
// caller. Other users' subscriptions are reported as not found.
func (h *Handler) ownedSubscription(w http.ResponseWriter, r *http.Request) (*subscription.Subscription, bool) {
	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return nil, false
	}

	sub, err := h.herald.Subscriptions().Get(r.Context(), subID)
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	if sub.UserID != scope.User(r.Context()) {
		writeErr(w, herald.ErrSubscriptionNotFound)
		return nil, false
	}

	return sub, true
}
