// Package metrics exposes the indexer's Prometheus collectors and the HTTP
// server that serves them, grounded on the source's own metrics.rs (a
// lazy_static registry of IntCounter/IntGauge) reimplemented over
// github.com/prometheus/client_golang.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gojson "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds every collector the indexer updates as it processes blocks.
// LatestBlockHeight is a signed gauge because Prometheus gauges have no
// unsigned variant, matching the source's "as i64" cast in main.rs.
type Metrics struct {
	BlocksProcessedTotal   prometheus.Counter
	LatestBlockHeight      prometheus.Gauge
	OrphanReceiptsTotal    prometheus.Counter
	AbandonedTxTotal       prometheus.Counter
	ReceiptIndexConflicts  prometheus.Gauge
	ReceiptIndexSize       prometheus.Gauge
	TransactionCacheSize   prometheus.Gauge
	StorageWriteErrorTotal prometheus.Counter
}

// New registers every collector against registry.
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		BlocksProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tx_indexer_block_processed_total",
			Help: "Number of blocks the stream driver has fully assembled and committed.",
		}),
		LatestBlockHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tx_indexer_latest_block_height",
			Help: "Height of the most recently committed block.",
		}),
		OrphanReceiptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tx_indexer_orphan_receipt_total",
			Help: "Receipts and receipt outcomes observed with no registered parent transaction key.",
		}),
		AbandonedTxTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tx_indexer_abandoned_transaction_total",
			Help: "In-flight transactions evicted by the retention sweep before finalizing.",
		}),
		ReceiptIndexConflicts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tx_indexer_receiptindex_conflict_total",
			Help: "Lifetime count of receipt id registrations that disagreed with an existing binding.",
		}),
		ReceiptIndexSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tx_indexer_receiptindex_size",
			Help: "Live entries in the receipt-to-transaction reverse index (C1).",
		}),
		TransactionCacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tx_indexer_transaction_cache_size",
			Help: "In-flight transactions held in the transaction cache (C2).",
		}),
		StorageWriteErrorTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tx_indexer_storage_write_error_total",
			Help: "Storage write attempts that failed during block processing.",
		}),
	}
}

// Server serves /metrics and a JWT-gated /debug/cache endpoint.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// DebugCacheFunc renders the current C1/C2 contents for the debug endpoint.
type DebugCacheFunc func() interface{}

// NewServer builds the metrics HTTP server. debugSecret signs and verifies
// the bearer token required by /debug/cache; an empty secret disables that
// route.
func NewServer(addr string, registry *prometheus.Registry, debugSecret string, debugCache DebugCacheFunc, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("metrics")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}}))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if debugSecret != "" && debugCache != nil {
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth(debugSecret, log))
			r.Get("/debug/cache", func(w http.ResponseWriter, req *http.Request) {
				writeJSON(w, debugCache())
			})
		})
	}

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r},
		log:        log,
	}
}

// ListenAndServe blocks until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("metrics server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func jwtAuth(secret string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			tokenString := header[len(prefix):]
			_, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				log.Warn("rejected debug endpoint token", zap.Error(err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = gojson.NewEncoder(w).Encode(v)
}
