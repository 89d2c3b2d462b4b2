// Package relay constructs and starts the HTTP server that fronts the hub,
// with helpers that apply sensible production defaults.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// CreateServer creates and configures an HTTP server with the specified port
// and handler. Read/write timeouts are left unset because WebSocket sessions
// are long-lived; the pumps enforce their own deadlines per frame.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it exits.
func StartServer(server *http.Server) error {
	logrus.WithField("addr", server.Addr).Info("Relay listening")
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server, waiting for active
// connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	logrus.Info("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown error")
		return err
	}

	logrus.Info("HTTP server shutdown completed")
	return nil
}
