package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lookupbot/internal/metrics"
)

// Health serves the liveness endpoint and the Prometheus metrics page.
type Health struct {
	host    string
	port    int
	logger  *slog.Logger
	server  *http.Server
	started time.Time
}

func NewHealth(host string, port int, logger *slog.Logger) *Health {
	return &Health{host: host, port: port, logger: logger}
}

// Start serves until ctx is done, then shuts down gracefully.
func (h *Health) Start(ctx context.Context) error {
	h.started = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", h.handleStatus)
	mux.HandleFunc("GET /healthz", h.handleStatus)
	mux.Handle("GET /metrics", metrics.Collector.Handler())

	addr := fmt.Sprintf("%s:%d", h.host, h.port)
	h.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	h.logger.Info("health endpoint started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.server.Shutdown(shutdownCtx)
	}()

	if err := h.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *Health) handleStatus(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}
