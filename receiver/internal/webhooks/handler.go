package webhooks

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v69/github"
	ghlib "github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/pkg/errors"
)

// maxPayloadBytes is the largest webhook payload GitHub will send.
const maxPayloadBytes = 25 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

// Handler is an implementation of the http.Handler interface that can handle
// webhooks (events) from GitHub by delegating to a transport-agnostic Service
// interface.
type Handler struct {
	// Service is a transport-agnostic webhook (event) handler.
	Service Service
	nowFn   func() time.Time
}

// NewHandler returns a Handler that delegates to the provided Service.
func NewHandler(service Service) *Handler {
	return &Handler{
		Service: service,
		nowFn:   time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")

	// If we encounter an error reading the request body, we're just going to
	// roll with it. The truncated body will naturally fail signature
	// verification.
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes)) // nolint: errcheck

	outcome, err := h.Service.Handle(
		r.Context(),
		Envelope{
			Body:       body,
			Signature:  r.Header.Get(github.SHA256SignatureHeader),
			EventType:  github.WebHookType(r),
			DeliveryID: github.DeliveryID(r),
		},
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// writeError maps an error returned by the Service to an HTTP response.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var authErr *AuthenticationError
	var parseErr *ParseError
	var rateLimitedErr *ghlib.RateLimitedError
	var upstreamErr *ghlib.UpstreamAuthError
	var identityErr *ghlib.IdentityError
	switch {
	case errors.As(err, &authErr):
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: authErr.Detail})
	case errors.As(err, &parseErr):
		h.writeJSON(
			w,
			http.StatusUnprocessableEntity,
			errorResponse{Detail: "Invalid JSON payload"},
		)
	case errors.As(err, &rateLimitedErr):
		log.Warn("GitHub rate limit exceeded", "reset", rateLimitedErr.Reset)
		w.Header().Set(
			"Retry-After",
			strconv.Itoa(retryAfterSeconds(rateLimitedErr.Reset, h.nowFn())),
		)
		h.writeJSON(
			w,
			http.StatusTooManyRequests,
			errorResponse{Detail: "GitHub rate limit exceeded"},
		)
	case errors.As(err, &upstreamErr):
		log.Error(err)
		h.writeJSON(
			w,
			http.StatusBadGateway,
			errorResponse{Detail: "GitHub rejected the App's credentials"},
		)
	case errors.As(err, &identityErr):
		log.Error(err)
		h.writeJSON(
			w,
			http.StatusInternalServerError,
			errorResponse{Detail: "GitHub App identity is not configured"},
		)
	default:
		log.Error(err)
		h.writeJSON(
			w,
			http.StatusInternalServerError,
			errorResponse{Detail: "Internal server error"},
		)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, obj interface{}) {
	responseJSON, _ := json.Marshal(obj)
	w.WriteHeader(status)
	w.Write(responseJSON) // nolint: errcheck
}

// retryAfterSeconds rounds the time remaining until reset up to a whole number
// of seconds, and never less than one.
func retryAfterSeconds(reset time.Time, now time.Time) int {
	secs := int(math.Ceil(reset.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
