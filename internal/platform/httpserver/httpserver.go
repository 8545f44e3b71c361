package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Write timeout stays generous because rent-roll
// ingestion can touch every unit on a property in one request.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
