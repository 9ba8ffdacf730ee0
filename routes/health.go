package routes

import (
	"net/http"

	"github.com/langwatch/langwatch-sub008/responder"
)

// HealthHandler handles GET /health requests
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	responder.New(w, map[string]string{"status": "ok"})
}
