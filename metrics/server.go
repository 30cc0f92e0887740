package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pixtip/internal/config"
)

func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Listen serves the metrics endpoint until ctx is done; a disabled endpoint returns at once
func Listen(ctx context.Context, conf *config.Config) error {
	if !conf.Metrics.Enabled {
		return nil
	}
	address := conf.Metrics.BindIP + ":" + conf.Metrics.Port
	server := &http.Server{
		Addr:              address,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Println("starting metrics server on " + address)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
