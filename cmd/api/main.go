package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"floranav/internal/api"
	"floranav/internal/config"
	"floranav/internal/graph"
	"floranav/internal/metrics"
	"floranav/internal/planner"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	g, err := graph.LoadCSV(cfg.NodesCSV, cfg.EdgesCSV)
	if err != nil {
		log.Fatalf("failed to load road graph: %v", err)
	}
	log.Printf("road graph loaded: %d nodes", g.NodeCount())

	pl := planner.New(g, planner.Options{
		AvgSpeedKmh:     cfg.AvgSpeedKmh,
		MaxDestinations: cfg.MaxDestinations,
	})

	srvDeps, err := api.NewServer(pl, cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Suppliers
	mux.HandleFunc("/v1/suppliers", srvDeps.SuppliersHandler)
	mux.HandleFunc("/v1/suppliers/", srvDeps.SupplierByIDHandler)

	// Routes
	mux.HandleFunc("/v1/routes/compute", srvDeps.ComputeHandler)
	mux.HandleFunc("/v1/routes", srvDeps.RoutesIndexHandler)
	mux.HandleFunc("/v1/routes/", srvDeps.RouteByIDHandler) // includes /guide, /events/stream

	// Guides
	mux.HandleFunc("/v1/guide/validate", srvDeps.ValidateGuideHandler)

	// Webhook subscriptions
	mux.HandleFunc("/v1/webhooks", srvDeps.SubscriptionsHandler)
	mux.HandleFunc("/v1/webhooks/", srvDeps.SubscriptionByIDHandler)

	// WebSocket route events
	mux.HandleFunc("/v1/routes/ws", srvDeps.RouteEventsWSHandler)

	// Admin
	mux.HandleFunc("/v1/admin/routes/stats", srvDeps.RouteStatsHandler)
	mux.HandleFunc("/v1/admin/debug", srvDeps.DebugJSON)

	// Health and metrics
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", cfg.ListenAddr)
	if srvDeps.Pub != nil {
		worker := srvDeps.NewWebhookWorker()
		worker.Start()
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		dur := time.Since(start)
		status := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
		log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, sw.status, dur)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
