// Package httpx provides the HTTP middleware and response helpers used by the relay.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strings"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/platform/id"
)

// RequestIDHeader carries the HTTP correlation id.
const RequestIDHeader = "X-Request-ID"

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

// RequestID injects and echoes a request id for correlation.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" {
				generated, err := id.NewID()
				if err != nil {
					http.Error(w, "request id unavailable", http.StatusInternalServerError)
					return
				}
				requestID = generated
				r.Header.Set(RequestIDHeader, requestID)
			}
			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r)
		})
	}
}

// RecoverPanic converts panics into HTTP 500 responses.
func RecoverPanic() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
					if requestID == "" {
						requestID = "-"
					}
					log.Printf(
						"panic recovered method=%s path=%s request_id=%s panic=%v stack=%s",
						r.Method,
						r.URL.Path,
						requestID,
						recovered,
						strings.TrimSpace(string(debug.Stack())),
					)
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WriteJSON writes a JSON response with the provided status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return fmt.Errorf("response writer is required")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteError writes err as JSON using its domain code for the status.
func WriteError(w http.ResponseWriter, err error) {
	if w == nil {
		return
	}
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	body := ErrorBody{Error: err.Error()}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		body.Code = string(domainErr.Code)
	}
	_ = WriteJSON(w, HTTPStatus(err), body)
}

// HTTPStatus maps a domain error to an HTTP status.
func HTTPStatus(err error) int {
	switch apperrors.CodeOf(err) {
	case "":
		return http.StatusOK
	case apperrors.CodeValidationFailed, apperrors.CodeUnknownCommand:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodePermissionDenied:
		return http.StatusForbidden
	case apperrors.CodePermissionRateLimited:
		return http.StatusTooManyRequests
	case apperrors.CodeOrderingStale, apperrors.CodeOutdatedClient, apperrors.CodeNoConsensus:
		return http.StatusConflict
	case apperrors.CodePlayerBusy, apperrors.CodeTransportFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
