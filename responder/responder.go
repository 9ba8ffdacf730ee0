package responder

import (
	"encoding/json"
	"log"
	"net/http"
)

type errorResponse struct {
	Error string `json:"error"`
}

// New writes a successful JSON response
func New(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// Error writes a JSON error response with the given status
func Error(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// ErrorWithCause logs the underlying error and writes a JSON error
// response without leaking the cause to the client
func ErrorWithCause(w http.ResponseWriter, status int, message string, err error) {
	log.Printf("%s: %v", message, err)
	Error(w, status, message)
}
