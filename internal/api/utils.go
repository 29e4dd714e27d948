package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrorDetail is the JSON body every failed request gets.
type ErrorDetail struct {
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code"`
}

// ErrorResponse writes a {detail, status_code} error body.
func ErrorResponse(w http.ResponseWriter, r *http.Request, status int, detail string) {
	WriteJSONResponse(w, r, status, ErrorDetail{Detail: detail, StatusCode: status})
}

// RespondError maps a domain error to its HTTP status and writes the error body.
// The wrapped message (everything before the sentinel) is what the client sees.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	detail := "Internal server error"

	switch {
	case errors.Is(err, ErrBadRequest):
		status, detail = http.StatusBadRequest, clientMessage(err, "Bad request")
	case errors.Is(err, ErrUnauthenticated):
		status, detail = http.StatusUnauthorized, clientMessage(err, "Unauthorized")
	case errors.Is(err, ErrForbidden):
		status, detail = http.StatusForbidden, clientMessage(err, "Forbidden")
	case errors.Is(err, ErrNotFound):
		status, detail = http.StatusNotFound, clientMessage(err, "Not found")
	case errors.Is(err, ErrConflict):
		status, detail = http.StatusConflict, clientMessage(err, "Conflict")
	default:
		slog.ErrorContext(r.Context(), "Unhandled error", slog.Any("error", err))
	}

	ErrorResponse(w, r, status, detail)
}

// clientMessage strips the trailing ": <sentinel>" suffix produced by
// fmt.Errorf("message: %w", sentinel), leaving the human-readable part.
func clientMessage(err error, fallback string) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx > 0 {
		msg = msg[:idx]
	}
	if msg == "" {
		return fallback
	}
	return msg
}

// WriteJSONResponse encodes data as JSON and writes the response.
func WriteJSONResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	js, err := json.Marshal(data)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to marshal JSON response", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(js); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write response body", slog.Any("error", err))
	}
}

// DecodeJSONBody reads and decodes a JSON request body safely.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)

		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")

		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)

		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")

		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)

		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)

		default:
			return fmt.Errorf("error decoding JSON body: %w", err)
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}
