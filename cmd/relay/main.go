package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/talenthub/presence-relay/internal/relay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Allow local development overrides; environment variables alone are fine.
	_ = godotenv.Load()

	config := relay.NewConfigFromEnv()
	relay.SetConfig(config)
	setupLogging(config)

	hub := relay.NewHub()
	go hub.Run()

	router := relay.SetupRoutes(hub)
	server := relay.CreateServer(config.Port, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- relay.StartServer(server)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logrus.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server failed")
		}
	}

	if err := relay.ShutdownServer(server, shutdownTimeout); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown did not complete cleanly")
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logrus.WithError(err).Warn("Hub shutdown did not complete cleanly")
	}
}

func setupLogging(config *relay.Config) {
	if config.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		logrus.WithField("level", config.LogLevel).Warn("Invalid LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
