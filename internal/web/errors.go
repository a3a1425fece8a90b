package web

// errors.go renders failures for clients.
//
// The technical error is logged with the request id; the client gets the
// mapped message and support code as JSON, or as an HTML fragment when the
// request came from HTMX.

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/tabinfer/internal/core"
	"github.com/JonMunkholm/tabinfer/internal/logging"
	"github.com/JonMunkholm/tabinfer/internal/web/templates"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error     string        `json:"error"`
	Message   string        `json:"message"`
	Action    string        `json:"action,omitempty"`
	Code      string        `json:"code"`
	Category  core.Category `json:"category"`
	RequestID string        `json:"request_id,omitempty"`
}

// respondError maps err, logs it and writes the response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	logger := logging.FromContext(r.Context())

	attrs := []any{"path", r.URL.Path, "method", r.Method, "status", msg.Status, "code", msg.Code, "error", err.Error()}
	if msg.Status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	if isHTMX(r) {
		renderErrorPartial(w, r, msg)
		return
	}
	respondErrorJSON(w, msg, middleware.GetReqID(r.Context()))
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, requestID string) {
	detail := msg.Detail
	if detail == "" {
		detail = msg.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(msg.Status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     detail,
		Message:   msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		Category:  msg.Category,
		RequestID: requestID,
	})
}

func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(msg.Status)
	text := msg.Message
	if msg.Detail != "" {
		text = msg.Detail
	}
	if err := templates.ErrorAlert(text, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render error partial", "error", err)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
