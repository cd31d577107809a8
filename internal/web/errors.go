package web

// errors.go provides unified error responses for the web layer.
//
// Every error is logged with its technical detail and the request id, then
// mapped through core.MapError and answered as JSON for API routes or as an
// HTML alert for pages.

import (
	"net/http"
	"strings"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/logging"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/web/middleware"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/web/templates"
)

// respondError logs err and writes the user-facing response. A zero status
// is derived from the error code.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	userMsg := core.MapError(err)
	if status == 0 {
		status = statusForCode(userMsg.Code)
	}

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if wantsJSON(r) {
		middleware.WriteError(w, err, status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	page := templates.Layout("Error", templates.ErrorAlert(userMsg.Message, userMsg.Action, userMsg.Code))
	if rerr := page.Render(r.Context(), w); rerr != nil {
		logger.Error("render error page", "error", rerr)
	}
}

// statusForCode maps a user message code to an HTTP status.
func statusForCode(code string) int {
	switch code {
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "FILE002":
		return http.StatusUnsupportedMediaType
	case "FILE003", "FILE004", "FILE005", "FILE006":
		return http.StatusBadRequest
	case "STR001", "STR002", "STR003", "STR004", "ROW001", "ROW002", "PRF001":
		return http.StatusUnprocessableEntity
	case "PRF002", "UPL002":
		return http.StatusNotFound
	case "PRF003", "DB002", "UPL005":
		return http.StatusConflict
	case "UPL001", "DB001", "DB003":
		return http.StatusServiceUnavailable
	case "UPL003":
		return http.StatusRequestTimeout
	case "UPL004":
		return http.StatusGatewayTimeout
	case "REQ003":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// wantsJSON reports whether the client expects a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
