package dispatch

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/ccerrors"
)

// dispatchError is the gateway's own error taxonomy for failures that occur
// in dispatch itself (bad routing, exhausted fallback) rather than inside a
// single provider call, which already produces a *ccerrors.Error.
type dispatchErrorKind string

const (
	kindRouting  dispatchErrorKind = "routing_error"
	kindParse    dispatchErrorKind = "parse_error"
	kindProvider dispatchErrorKind = "provider_error"
)

type dispatchError struct {
	kind    dispatchErrorKind
	message string
}

func (e *dispatchError) Error() string { return e.message }

func routingError(format string, args ...any) *dispatchError {
	return &dispatchError{kind: kindRouting, message: fmt.Sprintf(format, args...)}
}

func parseError(format string, args ...any) *dispatchError {
	return &dispatchError{kind: kindParse, message: fmt.Sprintf(format, args...)}
}

func providerError(format string, args ...any) *dispatchError {
	return &dispatchError{kind: kindProvider, message: fmt.Sprintf(format, args...)}
}

func (k dispatchErrorKind) httpStatus() int {
	switch k {
	case kindRouting:
		return http.StatusBadRequest
	case kindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes status and data as a JSON body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorEnvelope mirrors the Anthropic error response shape so clients that
// already understand /v1/messages errors understand ours too.
type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError writes err as a JSON error envelope, mapping it to an HTTP
// status and logging it. It accepts both *dispatchError and *ccerrors.Error
// so handlers can return either without converting.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch e := err.(type) {
	case *dispatchError:
		status = e.kind.httpStatus()
	case *ccerrors.Error:
		status = mapCodeToStatus(e)
	}

	logger.Error("request failed", zap.Int("status", status), zap.Error(err))

	var body errorEnvelope
	body.Error.Type = "error"
	body.Error.Message = message
	writeJSON(w, status, body)
}

func mapCodeToStatus(e *ccerrors.Error) int {
	if e.Code == ccerrors.CodeAPI && e.Status != 0 {
		return e.Status
	}
	switch e.Code {
	case ccerrors.CodeModelNotFound:
		return http.StatusNotFound
	case ccerrors.CodeAuth:
		return http.StatusUnauthorized
	case ccerrors.CodeConfig:
		return http.StatusInternalServerError
	case ccerrors.CodeSerialization, ccerrors.CodeHTTP:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSONBodyLoose decodes r.Body into dst, capping the body at 1 MB.
// Unknown fields are tolerated since every body this gateway accepts
// (Anthropic/OpenAI wire requests, passthrough config edits) carries fields
// this module doesn't model.
func decodeJSONBodyLoose(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(dst)
}

func validateJSONContentType(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
