package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. The write timeout leaves room for paid ledger
// writes, which wait several rounds for confirmation, and the read timeout
// covers multipart image uploads on slow links.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
