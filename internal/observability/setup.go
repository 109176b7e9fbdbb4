package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Logger is the structured audit logger, separate from the leveled
// application log.
var Logger *zap.Logger

func Init(ctx context.Context, metricsAddr string) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(ReviewResolutionsTotal)
	prometheus.MustRegister(PendingRedeliveriesTotal)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	}

	return nil
}
