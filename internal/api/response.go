package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fmuoria/ranksense/internal/agent"
	"github.com/fmuoria/ranksense/internal/ingestion"
	"github.com/fmuoria/ranksense/internal/logger"
	"github.com/fmuoria/ranksense/internal/store"
	"github.com/fmuoria/ranksense/internal/topsis"
)

// Error codes
const (
	ErrCodeInternalServer   = "INTERNAL_SERVER_ERROR"
	ErrCodeInvalidParameter = "INVALID_PARAMETER"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeUnprocessable    = "UNPROCESSABLE"
	ErrCodeUnavailable      = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout          = "TIMEOUT"
)

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details
type ErrorDetail struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	RequestID string       `json:"request_id"`
	Timestamp time.Time    `json:"timestamp"`
	Fields    []FieldError `json:"fields,omitempty"`
}

// FieldError locates a validation failure.
type FieldError struct {
	Field       string `json:"field"`
	CandidateID string `json:"candidate_id,omitempty"`
	Criterion   string `json:"criterion,omitempty"`
	Constraint  string `json:"constraint"`
	Message     string `json:"message"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, fields []FieldError) {
	resp := ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
		Fields:    fields,
	}}

	log := s.logger.With(
		zap.String(logger.FieldRequestID, resp.Error.RequestID),
		zap.String("error_code", code),
		zap.Int("status", status),
	)
	if status >= http.StatusInternalServerError {
		log.Error("API error response", zap.String("message", message))
	} else {
		log.Debug("API error response", zap.String("message", message))
	}

	s.respondJSON(w, status, resp)
}

// respondErr maps domain errors to HTTP statuses.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *topsis.ValidationError
	switch {
	case errors.As(err, &verr):
		s.respondError(w, r, http.StatusBadRequest, ErrCodeValidation, verr.Error(), []FieldError{validationField(verr)})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ingestion.ErrNoMessages):
		s.respondError(w, r, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
	case errors.Is(err, agent.ErrNoDocuments), errors.Is(err, agent.ErrTooManyDocuments):
		s.respondError(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, err.Error(), nil)
	case errors.Is(err, agent.ErrNothingScored):
		s.respondError(w, r, http.StatusUnprocessableEntity, ErrCodeUnprocessable, err.Error(), nil)
	case errors.Is(err, agent.ErrGmailDisabled):
		s.respondError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, r, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error(), nil)
	default:
		s.respondError(w, r, http.StatusInternalServerError, ErrCodeInternalServer, err.Error(), nil)
	}
}

func validationField(v *topsis.ValidationError) FieldError {
	field := "candidates"
	if v.CandidateID != "" {
		field = "candidates[" + v.CandidateID + "]"
		if v.Criterion != "" {
			field += ".criteria[" + v.Criterion + "]"
		}
	}
	msg := v.Detail
	if msg == "" {
		msg = string(v.Constraint)
	}
	return FieldError{
		Field:       field,
		CandidateID: v.CandidateID,
		Criterion:   v.Criterion,
		Constraint:  string(v.Constraint),
		Message:     msg,
	}
}
