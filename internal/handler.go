package contact

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	CodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeInternalError     = "INTERNAL_SERVER_ERROR"

	successMessage = "Thank you for your message. We will get back to you soon."
)

// ContactResponse is the body of every 200 from the contact endpoint.
type ContactResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// APIError is the body of every error response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Handler serves POST/OPTIONS /api/contact-form.
type Handler struct {
	limiter    *RateLimiter
	guard      *rate.Limiter
	pipeline   *Pipeline
	origins    originPolicy
	maxBody    int64
	retryAfter string
	newID      func() string
	now        func() time.Time
}

func NewHandler(cfg *Config, limiter *RateLimiter, notifier Notifier) *Handler {
	h := &Handler{
		limiter:    limiter,
		pipeline:   NewPipeline(notifier),
		origins:    newOriginPolicy(cfg.AllowedOrigins, cfg.Development),
		maxBody:    int64(cfg.MaxBodyKB) * 1024,
		retryAfter: strconv.Itoa(cfg.RetryAfterSeconds()),
		newID:      uuid.NewString,
		now:        time.Now,
	}
	if cfg.GlobalRPS > 0 && cfg.GlobalBurst > 0 {
		h.guard = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalBurst)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := h.newID()
	ctx, logger := WithLogAttrs(r.Context(), "request_id", requestID)

	origin := r.Header.Get("Origin")
	hdr := w.Header()
	setSecurityHeaders(hdr)
	h.origins.setCORSHeaders(hdr, origin)
	hdr.Set("X-Request-ID", requestID)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic in contact handler", "err", rec, "stack", string(debug.Stack()))
			h.writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred. Please try again later.", nil)
		}
	}()

	logger.Info("contact form request received", "origin", origin)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		hdr.Set("Allow", "POST, OPTIONS")
		h.writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Only POST requests are allowed", nil)
		return
	}

	if h.guard != nil && !h.guard.Allow() {
		logger.Warn("global rate guard tripped")
		hdr.Set("Retry-After", "1")
		h.writeError(w, http.StatusTooManyRequests, CodeRateLimitExceeded, "Too many requests. Please try again later.", nil)
		return
	}

	ip := clientIP(r)
	if !h.limiter.Check(ctx, ip) {
		logger.Warn("rate limit exceeded", "client_ip", ip)
		hdr.Set("Retry-After", h.retryAfter)
		h.writeError(w, http.StatusTooManyRequests, CodeRateLimitExceeded, "Too many requests. Please try again later.", nil)
		return
	}

	raw, verr := h.decodeBody(w, r)
	if verr != nil {
		logger.Warn("unreadable request body", "reason", verr.Message)
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid input data", ValidationErrors{*verr})
		return
	}

	outcome, err := h.pipeline.Process(ctx, raw, requestID)
	if err != nil {
		if !errors.Is(err, ErrSendFailed) {
			logger.Error("contact pipeline failed", "err", err)
		}
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred. Please try again later.", nil)
		return
	}

	switch outcome.Kind {
	case Rejected:
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid input data", outcome.Errors)
		return
	case Accepted:
		logger.Info("contact form processed successfully", "remaining_requests", h.limiter.Remaining(ctx, ip))
	}

	writeJSON(w, http.StatusOK, ContactResponse{
		Success: true,
		Message: successMessage,
		ID:      requestID,
	})
}

// decodeBody parses the JSON body into an untyped value for Validate.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (any, *ValidationError) {
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	defer body.Close()

	dec := json.NewDecoder(body)
	var raw any
	err := dec.Decode(&raw)
	if err == nil {
		// Exactly one JSON value; anything after it but whitespace is rejected.
		if err = dec.Decode(&struct{}{}); errors.Is(err, io.EOF) {
			return raw, nil
		}
		if err == nil {
			err = errors.New("trailing data after JSON value")
		}
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, &ValidationError{Field: "form", Message: "Request body too large"}
	}
	return nil, &ValidationError{Field: "form", Message: "Invalid form data"}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details ValidationErrors) {
	e := APIError{
		Code:      code,
		Message:   message,
		Timestamp: h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if len(details) > 0 {
		e.Details = details
	}
	writeJSON(w, status, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("write response failed", "err", err)
	}
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
