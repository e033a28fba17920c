package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dhaarna97/BookSwap/internal/apperrors"
)

// envelope is the response shape used by every endpoint.
type envelope struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Token   string      `json:"token,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Message: message, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatus(err), envelope{Message: apperrors.MessageOf(err)})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return apperrors.Validation("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return nil
}
