package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"unicode"

	"globalbangla.org/internal/auth"
	"globalbangla.org/internal/blob"
	"globalbangla.org/internal/contest"
	"globalbangla.org/internal/obs"
	"globalbangla.org/internal/payment"
)

const internalMessage = "Something went wrong. Please try again."

type errorMapping struct {
	target error
	status int
	msg    string
}

// Order matters: wrapped sentinels come before the sentinels they wrap.
var errorTable = []errorMapping{
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "Not authenticated."},
	{auth.ErrInvalidCredential, http.StatusUnauthorized, "Invalid or expired token."},
	{auth.ErrForbidden, http.StatusForbidden, "Admin access required."},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials."},
	{auth.ErrEmailTaken, http.StatusConflict, "Email already registered."},
	{auth.ErrInvalidInviteCode, http.StatusForbidden, "Invalid invite code."},
	{auth.ErrAdminLimit, http.StatusForbidden, "Admin limit reached. Contact support."},
	{auth.ErrInvalidResetToken, http.StatusBadRequest, "Invalid or expired token."},
	{auth.ErrUserNotFound, http.StatusNotFound, "Student not found."},
	{contest.ErrCompetitionNotFound, http.StatusNotFound, "Competition not found."},
	{contest.ErrNotFound, http.StatusNotFound, "Not found."},
	{payment.ErrCompetitionNotFound, http.StatusNotFound, "Competition not found."},
	{payment.ErrOrderNotFound, http.StatusNotFound, "Order not found."},
	{payment.ErrCompetitionNotPaid, http.StatusBadRequest, "Competition is free."},
	{payment.ErrIncompleteDetails, http.StatusBadRequest, "Incomplete payment details."},
	{payment.ErrVerificationFailed, http.StatusBadRequest, "Payment verification failed."},
	{payment.ErrInvalidState, http.StatusConflict, "Payment already processed."},
	{payment.ErrGatewayUnavailable, http.StatusBadGateway, "Payment service temporarily unavailable."},
	{blob.ErrUnsupportedType, http.StatusBadRequest, "Unsupported file type."},
	{blob.ErrTooLarge, http.StatusRequestEntityTooLarge, "File too large."},
}

// handleError maps domain errors onto HTTP responses. Unknown errors are
// logged, reported and answered with a generic 500.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	for _, sentinel := range []error{auth.ErrInvalidInput, contest.ErrInvalidInput} {
		if errors.Is(err, sentinel) {
			writeError(w, r, http.StatusBadRequest, inputMessage(err, sentinel))
			return
		}
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			writeError(w, r, m.status, m.msg)
			return
		}
	}
	fields := map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}
	obs.ReportError(r.Context(), err, fields)
	writeError(w, r, http.StatusInternalServerError, internalMessage)
}

// inputMessage extracts the human detail from a wrapped validation error.
func inputMessage(err, sentinel error) string {
	msg := err.Error()
	if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
		msg = msg[i+1:]
	}
	msg = strings.TrimPrefix(msg, sentinel.Error())
	msg = strings.TrimSpace(strings.TrimPrefix(msg, ":"))
	if msg == "" {
		return "Invalid input."
	}
	return sentence(msg)
}

func sentence(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	if !strings.HasSuffix(s, ".") {
		runes = append(runes, '.')
	}
	return string(runes)
}

// writeError writes the error envelope. message duplicates error for clients
// that read the message key.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error":   msg,
		"message": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed.")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "Not found.")
}
