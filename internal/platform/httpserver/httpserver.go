package httpserver

import (
	"net/http"
	"time"
)

// New builds the custody API server. The write timeout leaves headroom for a
// full ledger submission cycle (submit timeout times bounded retries) under
// the router's own per-request timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
