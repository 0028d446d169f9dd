package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"formdesk/auth"

	googleuuid "github.com/google/uuid"
	"go.uber.org/zap"
)

// errorResponse is the JSON body of every error answered by this package.
type errorResponse struct {
	Error string `json:"error"`
}

// codedResponse is used by the public endpoints, whose clients branch on code.
type codedResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// writeError writes a JSON error response and logs the underlying error.
// Only message reaches the client.
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if logger != nil {
		fields := []interface{}{"status_code", statusCode}
		if err != nil {
			fields = append(fields, "error", err.Error())
		}
		if statusCode >= http.StatusInternalServerError {
			logger.Errorw(message, fields...)
		} else {
			logger.Debugw(message, fields...)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// authStatus maps an authentication error kind to its HTTP status.
func authStatus(kind auth.Kind) int {
	switch kind {
	case auth.KindBadRequest:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeAuthError answers with the status for err's kind. Internal causes are
// logged and replaced by a generic message.
func (a *API) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status := authStatus(auth.KindOf(err))
	message := auth.MsgInternal

	var authErr *auth.Error
	if status != http.StatusInternalServerError && errors.As(err, &authErr) {
		message = authErr.Message
	}
	if status == http.StatusInternalServerError {
		a.logger.Errorw("Authentication backend failure",
			"error", err,
			"path", r.URL.Path,
			"request_id", GetRequestIDOrDefault(r.Context()))
		writeError(w, status, message, nil, nil)
		return
	}
	writeError(w, status, message, err, a.logger)
}

// decodeJSONBodyWithLimit decodes a JSON request body with a size limit
func (a *API) decodeJSONBodyWithLimit(w http.ResponseWriter, r *http.Request, dst interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	err := decoder.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON syntax at byte offset %d", syntaxError.Offset), err, a.logger)
		case errors.As(err, &unmarshalTypeError):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid type for field '%s'", unmarshalTypeError.Field), err, a.logger)
		case errors.As(err, &maxBytesError):
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", err, a.logger)
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			writeError(w, http.StatusBadRequest, "JSON contains "+strings.TrimPrefix(err.Error(), "json: "), err, a.logger)
		default:
			writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		}
		return err
	}

	return nil
}

// validateUUID validates that a string is a valid UUID format
func validateUUID(id string) error {
	if _, err := googleuuid.Parse(id); err != nil {
		return fmt.Errorf("invalid UUID format: %s", id)
	}
	return nil
}
