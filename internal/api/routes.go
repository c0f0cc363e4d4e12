package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const apiPrefix = "/api/v1"

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Full paths on the root router so a method mismatch answers 405.
	r.HandleFunc(apiPrefix+"/status", handler.GetStatus).Methods("GET")
	r.HandleFunc(apiPrefix+"/config", handler.UpdateConfig).Methods("PATCH")
	r.HandleFunc(apiPrefix+"/test", handler.SendTest).Methods("POST")
	r.HandleFunc(apiPrefix+"/alerts", handler.GetAlerts).Methods("GET")

	return r
}

// NewServer builds the admin HTTP server.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}
