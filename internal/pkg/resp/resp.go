// Package resp writes the JSON envelope shared by every HTTP endpoint of the chat server.
package resp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"tempchat/internal/pkg/errs"
	"tempchat/internal/pkg/logx"
)

// Envelope is the body of every API response. RequestID is only set on failures so that a
// client report can be matched against the request log.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// JSON encodes payload with the given status. Room state changes constantly, so nothing
// written here may be cached.
func JSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logx.Error(err, "encode response", "path", r.URL.Path, "http_status", status)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Success answers 200 with data wrapped in a code 0 envelope.
func Success(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, r, http.StatusOK, Envelope{Message: "success", Data: data})
}

// Error answers with the status and business code of e, defaulting to ErrUnknown.
// Server side failures are logged with the request id echoed to the client.
func Error(w http.ResponseWriter, r *http.Request, e *errs.CustomError) {
	if e == nil {
		e = errs.NewError(errs.ErrUnknown)
	}

	reqID := middleware.GetReqID(r.Context())
	if e.Status >= http.StatusInternalServerError {
		logx.Warn("request failed",
			"path", r.URL.Path,
			"code", e.Code,
			"request_id", reqID,
		)
	}

	JSON(w, r, e.Status, Envelope{Code: e.Code, Message: e.Message, RequestID: reqID})
}
