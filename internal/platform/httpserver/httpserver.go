// Package httpserver builds the process's http.Server. Gate clients sit on
// building networks that drop connections mid-request, so the connection
// itself carries timeouts; per-request deadlines come from the middleware.
package httpserver

import (
	"net/http"
	"time"
)

// New wires the router into a server with connection-level timeouts.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
