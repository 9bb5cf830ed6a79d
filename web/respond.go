// Package web holds the JSON response and request helpers shared by the handlers.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"optica/model"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.S().Warnw("failed to encode response", "error", err)
	}
}

// WriteJSONError writes {"message": message}.
func WriteJSONError(w http.ResponseWriter, message string, statusCode int) {
	JSON(w, statusCode, map[string]string{"message": message})
}

type validationBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

// Error maps domain errors to HTTP statuses. Unknown errors are logged and
// reported as 500 without detail.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusUnprocessableEntity, validationBody{Message: "validation failed", Fields: verr.Fields})
	case errors.Is(err, model.ErrNotFound):
		WriteJSONError(w, "not found", http.StatusNotFound)
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrInvalidTransition):
		WriteJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrForbidden):
		WriteJSONError(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, model.ErrUnauthorized):
		WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, model.ErrTenantRequired):
		WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrBadRequest):
		WriteJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		WriteJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}

// ErrBadRequest marks malformed input that is not a field validation failure.
var ErrBadRequest = errors.New("bad request")

func BadRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Decode reads a JSON body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return BadRequestf("invalid JSON body: %v", err)
	}
	return nil
}

// PathID parses a positive integer path value.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequestf("invalid %s", name)
	}
	return id, nil
}

// QueryInt parses an optional integer query parameter.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, BadRequestf("invalid %s", name)
	}
	return n, nil
}

// QueryInt64 parses an optional id query parameter; 0 means absent.
func QueryInt64(r *http.Request, name string) (int64, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, BadRequestf("invalid %s", name)
	}
	return n, nil
}

// QueryBool accepts 1/true/yes.
func QueryBool(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
