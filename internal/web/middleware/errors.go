package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
)

// ErrorResponse is the JSON body of every error answered by the service.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// NewErrorResponse maps err to its user-facing response body.
func NewErrorResponse(err error) ErrorResponse {
	msg := core.MapError(err)
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// WriteError answers with the JSON error body for err.
func WriteError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(err))
}
