package observe

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHealthServer builds the debug HTTP server exposing /healthz (a bare
// liveness probe — a stdio process that can answer HTTP at all is alive,
// since the registry is frozen at startup and cannot itself go unhealthy)
// and /metrics (the Prometheus scrape endpoint for the instruments Init
// registered). Grounded on glyphoxa's internal/health.Handler, simplified:
// there are no external dependencies here to check readiness against, so
// there is no /readyz.
func NewHealthServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthzHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
