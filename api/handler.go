// Package api provides the admin HTTP API for Herald webhook management.
//
// Every route acts for the calling user, read from the X-Herald-User header.
// Mount the handler under any prefix with http.StripPrefix.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/ratelimit"
	"github.com/xraph/herald/scope"
	"github.com/xraph/herald/subscription"
)

// HeaderUser carries the calling user's ID.
const HeaderUser = "X-Herald-User"

// Handler is the root HTTP handler for the Herald admin API.
type Handler struct {
	herald  *herald.Herald
	limiter ratelimit.Limiter
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHandler creates a new admin API handler. A nil limiter disables rate limiting.
func NewHandler(h *herald.Herald, limiter ratelimit.Limiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	hd := &Handler{
		herald:  h,
		limiter: limiter,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	hd.registerRoutes()
	return hd
}

func (h *Handler) registerRoutes() {
	// Event types
	h.mux.HandleFunc("POST /event-types", h.createEventType)
	h.mux.HandleFunc("GET /event-types", h.listEventTypes)
	h.mux.HandleFunc("GET /event-types/{name}", h.getEventType)
	h.mux.HandleFunc("DELETE /event-types/{name}", h.deleteEventType)

	// Subscriptions
	h.mux.HandleFunc("POST /subscriptions", h.createSubscription)
	h.mux.HandleFunc("GET /subscriptions", h.listSubscriptions)
	h.mux.HandleFunc("GET /subscriptions/{id}", h.getSubscription)
	h.mux.HandleFunc("PUT /subscriptions/{id}", h.updateSubscription)
	h.mux.HandleFunc("DELETE /subscriptions/{id}", h.deleteSubscription)
	h.mux.HandleFunc("PATCH /subscriptions/{id}/enable", h.enableSubscription)
	h.mux.HandleFunc("PATCH /subscriptions/{id}/disable", h.disableSubscription)
	h.mux.HandleFunc("POST /subscriptions/{id}/rotate-secret", h.rotateSecret)
	h.mux.HandleFunc("POST /subscriptions/{id}/test", h.testSubscription)

	// Deliveries
	h.mux.HandleFunc("GET /subscriptions/{id}/deliveries", h.listDeliveries)
	h.mux.HandleFunc("GET /deliveries/{id}", h.getDelivery)

	// Dispatch
	h.mux.HandleFunc("POST /dispatch", h.dispatch)

	// Stats
	h.mux.HandleFunc("GET /stats", h.getStats)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(h.userScope(h.rateLimit(next))))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.InfoContext(r.Context(), "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// userScope puts the calling user on the request context. Requests without
// a user are rejected.
func (h *Handler) userScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUser)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, HeaderUser+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(scope.WithUser(r.Context(), userID)))
	})
}

// rateLimit applies the limiter per calling user.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		d, err := h.limiter.Allow(ctx, scope.User(ctx))
		if err != nil {
			// Fail open.
			h.logger.WarnContext(ctx, "rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		hdr.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			secs := int(d.RetryAfter(time.Now()) / time.Second)
			hdr.Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps a service error to its HTTP status.
func writeErr(w http.ResponseWriter, err error) {
	var verr *subscription.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, herald.ErrSubscriptionNotFound),
		errors.Is(err, herald.ErrRecordNotFound),
		errors.Is(err, herald.ErrEventTypeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, herald.ErrInvalidDispatch),
		errors.Is(err, herald.ErrEventTypeDeprecated),
		errors.Is(err, herald.ErrPayloadValidationFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, herald.ErrSubscriptionExists),
		errors.Is(err, herald.ErrRecordExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, herald.ErrQueueClosed),
		errors.Is(err, herald.ErrStoreClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// queryBool returns a query parameter as *bool, nil when absent or malformed.
func queryBool(r *http.Request, key string) *bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	if err != nil {
		return nil
	}
	return &b
}
