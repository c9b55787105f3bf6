package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harun/backlog-agent/internal/observability"
	"github.com/harun/backlog-agent/internal/tracing"
	"github.com/harun/backlog-agent/pkg/agent"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	maxBodyBytes = 1 << 20

	messageEmpty        = "Message cannot be empty"
	messageInvalidBody  = "Invalid request body"
	messageInvalidID    = "Invalid session ID"
	messageHistoryClear = "Chat history cleared successfully"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is returned by the chat routes
type ChatResponse struct {
	Message      string `json:"message,omitempty"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/chat", s.instrument("/api/chat", s.limited(http.HandlerFunc(s.handleChat))))
	mux.Handle("DELETE /api/chat/history", s.instrument("/api/chat/history", s.limited(http.HandlerFunc(s.handleClearHistory))))
	mux.Handle("GET /health", s.instrument("/health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", observability.MetricsHandler())

	return s.cors(mux)
}

// handleChat submits one message to the caller's session
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ChatResponse{ErrorMessage: messageInvalidBody})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, ChatResponse{ErrorMessage: messageEmpty})
		return
	}

	id, ok := requestSessionID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ChatResponse{ErrorMessage: messageInvalidID})
		return
	}
	if id == "" {
		generated, err := gonanoid.New()
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to generate session ID")
			writeJSON(w, http.StatusInternalServerError, ChatResponse{ErrorMessage: agent.ErrCompletionFailed.Error()})
			return
		}
		id = generated
	}
	w.Header().Set(SessionHeader, id)

	ctx := tracing.WithSessionID(r.Context(), id)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	conversation, release, err := s.registry.Acquire(id)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create session")
		writeJSON(w, http.StatusInternalServerError, ChatResponse{ErrorMessage: agent.ErrCompletionFailed.Error()})
		return
	}
	defer release()

	if s.options.MaxMessages > 0 {
		conversation.TrimHistory(s.options.MaxMessages)
	}

	if s.options.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.RequestTimeout)
		defer cancel()
	}

	reply, err := conversation.Submit(ctx, req.Message)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			writeJSON(w, http.StatusBadRequest, ChatResponse{ErrorMessage: messageEmpty})
			return
		}
		logger.Warn().Err(err).Msg("Chat submission failed")
		writeJSON(w, http.StatusInternalServerError, ChatResponse{ErrorMessage: agent.ErrCompletionFailed.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Message: reply, Success: true})
}

// handleClearHistory resets the caller's session. Unknown sessions have
// nothing to clear.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := requestSessionID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ChatResponse{ErrorMessage: messageInvalidID})
		return
	}

	if id != "" {
		if conversation, found := s.registry.Get(id); found {
			conversation.ClearHistory()
			s.logger.Debug().Str("session_id", id).Msg("Chat history cleared")
		}
		w.Header().Set(SessionHeader, id)
	}

	writeJSON(w, http.StatusOK, ChatResponse{Message: messageHistoryClear, Success: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"sessions":  s.registry.Count(),
		"timestamp": time.Now().UnixMilli(),
	})
}

// requestSessionID returns the header value, "" when absent, and false when
// the value is malformed.
func requestSessionID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	if id == "" {
		return "", true
	}
	return id, sessionIDPattern.MatchString(id)
}

// limited rejects requests over the per-IP rate limit and requests arriving
// during shutdown
func (s *Server) limited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.shuttingDown() {
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}

		ip := clientIP(r)
		if !s.rateLimiter.Allow(ip) {
			retryAfter := s.rateLimiter.RetryAfter(ip)
			s.logger.Warn().
				Str("ip", ip).
				Str("path", r.URL.Path).
				Int("retry_after", retryAfter).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// instrument tags the request with a trace ID, then records and logs the outcome
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := tracing.NewRequestContext(r.Context())
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r.WithContext(ctx))

		observability.RecordHTTPRequest(route, recorder.status)
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}

// cors answers preflight requests and sets permissive headers when enabled
func (s *Server) cors(next http.Handler) http.Handler {
	if !s.options.AllowAllOrigins {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader)
		header.Set("Access-Control-Expose-Headers", SessionHeader+", Retry-After")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP prefers proxy headers, falling back to the connection address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
