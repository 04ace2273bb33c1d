// Package rest implements the tool API surface: request validation,
// response envelopes, rate limiting and the per-tool endpoints.
package rest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/usefreetools/toolbox/internal/auth"
	"github.com/usefreetools/toolbox/internal/docgen"
	"github.com/usefreetools/toolbox/internal/ratelimit"
	"github.com/usefreetools/toolbox/internal/scan"
	"github.com/usefreetools/toolbox/internal/speech"
	"github.com/usefreetools/toolbox/pkg/fault"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// Operation timeouts, matched to the upstream behavior of each phase.
const (
	FormParseTimeout  = 10 * time.Second
	FileReadTimeout   = 15 * time.Second
	BodyParseTimeout  = 5 * time.Second
	TranscribeTimeout = 30 * time.Second
	UpstreamTimeout   = 30 * time.Second
)

// Request body caps. Validators enforce the documented per-tool limits with
// exact error messages; these are the transport-level ceilings above them.
const (
	maxUploadBodySize = 64 << 20 // multipart endpoints
	maxJSONBodySize   = 1 << 20  // JSON endpoints
)

// Error codes clients branch on without string-matching messages.
const (
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeRateLimit       = "RATE_LIMIT"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeNotConfigured   = "SERVICE_NOT_CONFIGURED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// CORSConfig controls the Access-Control-* headers the API emits.
type CORSConfig struct {
	AllowOrigin  string
	AllowHeaders string
}

// MemoryStoreInspector is the optional admin view over the in-process
// store. The Redis store does not provide it.
type MemoryStoreInspector interface {
	Snapshot() map[string]ratelimit.Entry
	Len() int
}

// Deps wires the handler's collaborators. Everything is injected so tests
// can swap any piece; nil optional pieces disable their endpoints.
type Deps struct {
	Limiter  *ratelimit.Limiter
	Policies map[string]ratelimit.Policy
	CORS     CORSConfig

	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	Voices      *speech.CachedCatalog
	Converter   docgen.Converter
	Generator   docgen.Generator
	Scanner     *scan.Scanner

	Admin     *auth.Service
	Inspector MemoryStoreInspector
	Live      http.Handler
}

type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Limiter == nil {
		panic("rate limiter cannot be nil")
	}
	if deps.Policies == nil {
		deps.Policies = ratelimit.DefaultPolicies()
	}
	if deps.CORS.AllowOrigin == "" {
		deps.CORS.AllowOrigin = "*"
	}
	if deps.CORS.AllowHeaders == "" {
		deps.CORS.AllowHeaders = "Content-Type"
	}
	return &Handler{deps: deps}
}

// APIError is the uniform error envelope. Details carries every violated
// rule when validation fails; Error is always the primary message.
type APIError struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Error: message, Code: code})
}

// writeValidationErrors returns every violated rule. Oversized payloads use
// 413; all other validation failures are 400.
func writeValidationErrors(w http.ResponseWriter, result ValidationResult) {
	status := http.StatusBadRequest
	code := ErrCodeValidation
	if result.PayloadTooLarge {
		status = http.StatusRequestEntityTooLarge
		code = ErrCodePayloadTooLarge
	}
	writeJSON(w, status, APIError{
		Error:   result.Errors[0],
		Code:    code,
		Details: result.Errors,
	})
}

// writeFault maps a tagged error onto the status table. The switch over
// fault.Kind is total; untagged errors land on 500 with a generic body.
func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	// The transport cap surfaces the same way from JSON and multipart
	// bodies: MaxBytesReader's error propagates through the decoder or the
	// multipart parser. Both are the caller's payload, not our failure.
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Request body too large")
		return
	}

	kind := fault.KindOf(err)
	code := fault.CodeOf(err)

	if code == ErrCodePayloadTooLarge {
		var fe *fault.Error
		message := "Request body too large"
		if errors.As(err, &fe) {
			message = fe.Message
		}
		writeError(w, http.StatusRequestEntityTooLarge, code, message)
		return
	}

	message := "Internal server error"
	var fe *fault.Error
	if ok := errors.As(err, &fe); ok && kind != fault.KindInternal {
		message = fe.Message
	}

	var status int
	switch kind {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindRateLimited:
		status = http.StatusTooManyRequests
	case fault.KindUnavailable:
		status = http.StatusServiceUnavailable
	case fault.KindTimeout:
		status = http.StatusRequestTimeout
		if message == "Internal server error" {
			message = "Request timed out"
		}
	default:
		status = http.StatusInternalServerError
		slog.Error("unexpected failure",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
		)
	}

	writeError(w, status, code, message)
}

// withRequestID adds a unique request ID to the context and response headers.
func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next(w, r.WithContext(ctx))
	}
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// withRecover catches panics, logs the stack, and answers with a generic 500.
func withRecover(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"error", rec,
					"stack", string(debug.Stack()),
					"request_id", requestID(r.Context()),
				)
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
			}
		}()
		next(w, r)
	}
}

// withLogging records one structured line per request.
func withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(r.Context()),
		)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes through so WebSocket upgrades work behind the logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// maxBodySize caps the request body.
func maxBodySize(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next(w, r)
	}
}

// withCORS mirrors the configured origin on every response.
func (h *Handler) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.deps.CORS.AllowOrigin)
		next(w, r)
	}
}

// preflight answers OPTIONS with the endpoint's verbs.
func (h *Handler) preflight(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.deps.CORS.AllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", h.deps.CORS.AllowHeaders)
		w.WriteHeader(http.StatusOK)
	}
}

// rateLimited applies the scope's fixed-window policy and attaches the
// X-RateLimit headers before the handler runs.
func (h *Handler) rateLimited(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policy, ok := h.deps.Policies[scope]
		if !ok {
			policy = ratelimit.Policy{Window: time.Minute, MaxRequests: 10}
		}
		key := ratelimit.Key(scope, ratelimit.ClientKey(r))
		decision := h.deps.Limiter.Check(r.Context(), key, policy)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimit, "Rate limit exceeded. Try again later.")
			return
		}
		next(w, r)
	}
}

// adminOnly requires a valid admin bearer token.
func (h *Handler) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Admin == nil || !h.deps.Admin.Enabled() {
			writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "Admin access is not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Missing bearer token")
			return
		}
		if _, err := h.deps.Admin.ValidateToken(token); err != nil {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or expired token")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}

// chain is the standard middleware stack for a rate-limited endpoint.
func (h *Handler) chain(scope string, maxBytes int64, endpoint http.HandlerFunc) http.HandlerFunc {
	return withRequestID(withLogging(withRecover(h.withCORS(h.rateLimited(scope, maxBodySize(endpoint, maxBytes))))))
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Tool endpoints
	mux.HandleFunc("POST /transcribe", h.chain(ratelimit.ScopeTranscribe, maxUploadBodySize, h.handleTranscribe))
	mux.HandleFunc("OPTIONS /transcribe", h.preflight("POST"))

	mux.HandleFunc("POST /tts", h.chain(ratelimit.ScopeTTS, maxJSONBodySize, h.handleTTS))
	mux.HandleFunc("OPTIONS /tts", h.preflight("POST"))

	mux.HandleFunc("POST /convert-document", h.chain(ratelimit.ScopeConvert, maxUploadBodySize, h.handleConvert))
	mux.HandleFunc("OPTIONS /convert-document", h.preflight("POST"))

	mux.HandleFunc("GET /voice-models", h.chain(ratelimit.ScopeVoiceModels, maxJSONBodySize, h.handleVoiceModels))
	mux.HandleFunc("HEAD /voice-models", h.chain(ratelimit.ScopeVoiceModels, maxJSONBodySize, h.handleVoiceModelsHead))
	mux.HandleFunc("OPTIONS /voice-models", h.preflight("GET, HEAD"))

	mux.HandleFunc("POST /scan", h.chain(ratelimit.ScopeScan, maxJSONBodySize, h.handleScan))
	mux.HandleFunc("OPTIONS /scan", h.preflight("POST"))

	mux.HandleFunc("POST /generate/invoice", h.chain(ratelimit.ScopeInvoice, maxJSONBodySize, h.handleGenerate(docgen.KindInvoice)))
	mux.HandleFunc("OPTIONS /generate/invoice", h.preflight("POST"))
	mux.HandleFunc("POST /generate/proposal", h.chain(ratelimit.ScopeProposal, maxJSONBodySize, h.handleGenerate(docgen.KindProposal)))
	mux.HandleFunc("OPTIONS /generate/proposal", h.preflight("POST"))
	mux.HandleFunc("POST /generate/meeting-notes", h.chain(ratelimit.ScopeMeetingNotes, maxJSONBodySize, h.handleGenerate(docgen.KindMeetingNotes)))
	mux.HandleFunc("OPTIONS /generate/meeting-notes", h.preflight("POST"))

	// Live transcription upgrades happen inside the realtime server; the
	// rate limit is applied at upgrade time.
	if h.deps.Live != nil {
		mux.HandleFunc("GET /live/transcribe", withRequestID(withLogging(withRecover(h.rateLimited(ratelimit.ScopeLive, h.deps.Live.ServeHTTP)))))
	}

	// Admin surface
	mux.HandleFunc("POST /admin/login", h.chain(ratelimit.ScopeAdmin, maxJSONBodySize, h.handleAdminLogin))
	mux.HandleFunc("GET /admin/ratelimit", h.chain(ratelimit.ScopeAdmin, maxJSONBodySize, h.adminOnly(h.handleAdminRateLimit)))
	mux.HandleFunc("POST /admin/cache/purge", h.chain(ratelimit.ScopeAdmin, maxJSONBodySize, h.adminOnly(h.handleAdminCachePurge)))

	// Liveness, never rate limited.
	mux.HandleFunc("GET /health", withRequestID(withRecover(h.handleHealth)))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readJSONBody decodes a JSON request body under the body-parse deadline.
// Malformed JSON is a validation fault; an oversized body surfaces as 413
// through the MaxBytesReader installed by the middleware.
func (h *Handler) readJSONBody(r *http.Request, dest interface{}) error {
	_, err := runWithTimeout(r.Context(), BodyParseTimeout, func() (struct{}, error) {
		decoder := json.NewDecoder(r.Body)
		return struct{}{}, decoder.Decode(dest)
	})
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &fault.Error{
				Kind:    fault.KindValidation,
				Code:    ErrCodePayloadTooLarge,
				Message: "Request body too large",
			}
		}
		if fault.KindOf(err) == fault.KindTimeout {
			return err
		}
		return fault.Validation("Invalid JSON body")
	}
	return nil
}

// runWithTimeout races fn against a timer. On timeout the operation is
// abandoned from the caller's perspective; fn keeps running in its
// goroutine until it finishes on its own.
func runWithTimeout[T any](ctx context.Context, d time.Duration, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn()
		done <- outcome{value: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case out := <-done:
		return out.value, out.err
	case <-timer.C:
		return zero, fault.Timeout("Request timed out")
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
