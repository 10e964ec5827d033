package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrWong99/renoquote/internal/observe"
	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/internal/search"
	"github.com/MrWong99/renoquote/pkg/types"
)

// errBadBody is wrapped in a [types.ValidationError] when a request body is
// not the expected JSON document.
var errBadBody = errors.New("malformed request body")

// FieldError names one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// writeError maps err onto a status code and writes an [ErrorResponse].
// Server-side failures are logged; their detail is not echoed to the
// client.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Fields: fieldErrors(err)}
	if status >= http.StatusInternalServerError {
		observe.Logger(ctx).Error("api: request failed", "status", status, "err", err)
		resp = ErrorResponse{Error: http.StatusText(status)}
		if status == http.StatusServiceUnavailable {
			resp.Error = search.ErrStoreUnavailable.Error()
		}
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	var ve *types.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, quote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fieldErrors collects every validation error in err's tree.
func fieldErrors(err error) []FieldError {
	var out []FieldError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ve, ok := e.(*types.ValidationError); ok {
			out = append(out, FieldError{Field: ve.Field, Value: ve.Value, Message: ve.Wrapped.Error()})
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// decodeJSON reads a single JSON document from r's body into v. Unknown
// fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return types.NewValidationError("body", "", errBadBody)
		}
		return types.NewValidationError("body", "", fmt.Errorf("%w: %v", errBadBody, err))
	}
	return nil
}
