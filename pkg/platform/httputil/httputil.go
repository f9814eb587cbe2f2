// Package httputil centralizes JSON response writing and domain-error
// translation for HTTP handlers. Keeping the mapping here ensures every
// endpoint emits the same error envelope:
//
//	{"error": "<code>", "error_description": "<message>"}
//
// Internal errors deliberately omit the description so storage or wiring
// detail never leaks to callers.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "verikey/pkg/domain-errors"
)

// statusByCode maps domain error codes onto HTTP statuses.
var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeValidation:         http.StatusBadRequest,
	dErrors.CodeInvalidInput:       http.StatusBadRequest,
	dErrors.CodeUnauthorized:       http.StatusUnauthorized,
	dErrors.CodeForbidden:          http.StatusForbidden,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	dErrors.CodeUnavailable:        http.StatusServiceUnavailable,
	dErrors.CodeInternal:           http.StatusInternalServerError,
	dErrors.CodeInvariantViolation: http.StatusInternalServerError,
}

// hiddenCodes are codes whose message must not reach the client.
var hiddenCodes = map[dErrors.Code]bool{
	dErrors.CodeInternal:           true,
	dErrors.CodeInvariantViolation: true,
}

// StatusForCode returns the HTTP status for a domain error code.
// Unknown codes map to 500.
func StatusForCode(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError translates err into the standard JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if msg := dErrors.MessageOf(err); msg != "" && !hiddenCodes[code] {
		body["error_description"] = msg
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusForCode(code))
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON encodes v with the given status. Encoding failures after the
// header is written can only be logged by the caller's middleware; the
// status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteNoContent writes a bare 204.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// DecodeJSON strictly decodes a request body into dst. Unknown fields and
// trailing garbage are rejected so typos in payloads surface as 400s rather
// than silently-ignored fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// IsDomainError reports whether err carries a domain code (used by handlers
// that branch on already-translated errors).
func IsDomainError(err error) bool {
	var e *dErrors.Error
	return errors.As(err, &e)
}
