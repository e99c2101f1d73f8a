package common

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope of every JSON body the API writes.
type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// RespondWithJSON writes payload wrapped in a Response with the given status.
func RespondWithJSON(w http.ResponseWriter, code int, message string, data any) {
	if data == nil {
		data = struct{}{}
	}
	body, err := json.Marshal(Response{Message: message, Data: data})
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"failed to encode response","data":{}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// RespondWithError writes an error envelope with empty data.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, message, nil)
}

// RespondWithDomainError picks the status for err and writes message.
// Unmapped errors are reported as a generic internal error so storage
// details never leak to the caller.
func RespondWithDomainError(w http.ResponseWriter, err error, message string) {
	code := HTTPStatusFromError(err)
	if code == http.StatusInternalServerError {
		message = "internal error"
	}
	RespondWithError(w, code, message)
}
