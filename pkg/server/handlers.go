package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mercator-hq/railguard/pkg/config"
	"mercator-hq/railguard/pkg/engine"
	"mercator-hq/railguard/pkg/rails"
)

// internalErrorMessage is returned when no bundle text is available.
const internalErrorMessage = config.DefaultGenericFailure

// readinessTimeout bounds the endpoint probe behind /readyz.
const readinessTimeout = 5 * time.Second

type generateRequest struct {
	Messages []engine.Message `json:"messages"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorResponse keeps the shape of a normal response so clients can always
// show content. Message never carries internal detail.
type errorResponse struct {
	Content   string    `json:"content,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Error     errorBody `json:"error"`
}

func (s *Server) generateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		generic := s.genericFailure()

		maxBytes := s.config.MaxBodyBytes
		if maxBytes <= 0 {
			maxBytes = config.DefaultMaxBodyBytes
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		var req generateRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			s.logger.WarnContext(r.Context(), "invalid generate request", "error", err)
			writeJSON(w, status, errorResponse{
				Content: generic,
				Error:   errorBody{Type: "invalid_request", Message: "request body must be a JSON object with a messages array"},
			})
			return
		}

		resp, err := s.engine.Generate(r.Context(), req.Messages)
		if err != nil {
			status, kind := statusFor(err)
			if status >= 500 {
				s.logger.ErrorContext(r.Context(), "generate failed", "status", status, "error", err)
			} else {
				s.logger.WarnContext(r.Context(), "generate rejected", "status", status, "error", err)
			}
			msg := resp.Content
			if status == http.StatusBadRequest {
				msg = "messages must be system, user or assistant turns ending with a user turn"
			}
			writeJSON(w, status, errorResponse{
				Content:   resp.Content,
				RequestID: resp.RequestID,
				Error:     errorBody{Type: kind, Message: msg},
			})
			return
		}

		writeJSON(w, http.StatusOK, resp)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"bundle":    s.engine.Bundle().Name,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	if err := s.engine.HealthCheck(ctx); err != nil {
		s.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) genericFailure() string {
	if b := s.engine.Bundle(); b != nil && b.Messages.GenericFailure != "" {
		return b.Messages.GenericFailure
	}
	return internalErrorMessage
}

// statusFor maps an engine error to an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidConversation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, rails.ErrProviderUnavailable):
		return http.StatusBadGateway, "provider_unavailable"
	case errors.Is(err, rails.ErrProviderTimeout), errors.Is(err, rails.ErrActionTimeout):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
