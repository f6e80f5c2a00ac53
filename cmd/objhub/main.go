// Command objhub serves the stateless WebSocket change-broadcast fan-out.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/elementstore/objstore/internal/hub"
	"github.com/elementstore/objstore/internal/platform/config"
	"github.com/elementstore/objstore/internal/platform/logging"
	"github.com/elementstore/objstore/internal/platform/metrics"
)

const (
	exitOK          = 0
	exitConfigError = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	config.LoadDotEnv("")

	addr := flag.String("addr", config.GetEnv("HUB_ADDR", ":8081"), "listen address")
	flag.Parse()

	log := logging.NewFromEnv("objhub")
	m := metrics.New("objhub")

	h := hub.New(log, m, uuid.NewString)

	router := mux.NewRouter()
	h.BroadcastIngress(router)
	router.Path("/metrics").Handler(metrics.Handler())

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]any{"addr": *addr}).Info("objhub listening")
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case serveErr := <-errCh:
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.WithError(serveErr).Error("objhub terminated unexpectedly")
			return exitConfigError
		}
	case <-sigCh:
		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}
	return exitOK
}
