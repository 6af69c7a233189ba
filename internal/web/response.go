// Package web holds the JSON request/response helpers shared by the HTTP handlers.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/FACorreiaa/split-budget/internal/common"
)

// MaxJSONBodyBytes bounds JSON request bodies.
const MaxJSONBodyBytes = 1 << 20

// ErrorBody is the JSON envelope for failed requests.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error maps err onto a status code and writes the error envelope.
// Unexpected errors are logged and reported without detail.
func Error(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", slog.Any("error", err))
	}
	JSON(w, status, ErrorBody{Error: detail})
}

func classify(err error) (int, ErrorDetail) {
	var ve *common.ValidationError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrorDetail{Code: "invalid_argument", Message: ve.Message, Field: ve.Field}
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, ErrorDetail{Code: "payload_too_large", Message: "request body too large"}
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest, ErrorDetail{Code: "invalid_argument", Message: err.Error()}
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorDetail{Code: "invalid_credentials", Message: err.Error()}
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorDetail{Code: "unauthenticated", Message: "authentication required"}
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, ErrorDetail{Code: "forbidden", Message: "forbidden"}
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, ErrorDetail{Code: "not_found", Message: err.Error()}
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict, ErrorDetail{Code: "conflict", Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorDetail{Code: "internal", Message: "internal server error"}
	}
}

// Decode reads a JSON body into v, rejecting unknown fields and trailing data.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return common.Invalid("body", "request body is empty")
		}
		return common.Invalid("body", "malformed JSON: %v", err)
	}
	if dec.More() {
		return common.Invalid("body", "request body must contain a single JSON object")
	}
	return nil
}

// QueryInt reads an integer query parameter with a default and bounds.
func QueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, common.Invalid(key, "must be an integer")
	}
	if v < min || v > max {
		return 0, common.Invalid(key, "must be between %d and %d", min, max)
	}
	return v, nil
}

// Page is the envelope for paginated lists.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Attachment sets headers for a file download.
func Attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
