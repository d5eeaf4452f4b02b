package exporter

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const indexPage = `<!DOCTYPE html>
<html>
<head><title>cephadm metadata exporter</title></head>
<style>
body {
  font-family: sans-serif;
  font-size: 0.8em;
}
table {
  border-width: 0px;
  border-spacing: 0px;
  margin-left:20px;
}
tr:hover {
  background: PowderBlue;
}
td,th {
  padding: 5px;
}
</style>
<body>
    <h1>cephadm metadata exporter v1</h1>
    <table>
      <thead>
        <tr><th>Endpoint</th><th>Methods</th><th>Response</th><th>Description</th></tr>
      </thead>
      <tr><td><a href='v1/metadata'>v1/metadata</a></td><td>GET</td><td>JSON</td><td>Return <b>all</b> metadata for the host</td></tr>
      <tr><td><a href='v1/metadata/daemons'>v1/metadata/daemons</a></td><td>GET</td><td>JSON</td><td>Return daemon and systemd states for ceph daemons (ls)</td></tr>
      <tr><td><a href='v1/metadata/disks'>v1/metadata/disks</a></td><td>GET</td><td>JSON</td><td>show disk inventory (ceph-volume)</td></tr>
      <tr><td><a href='v1/metadata/health'>v1/metadata/health</a></td><td>GET</td><td>JSON</td><td>Show current health of the exporter sub-tasks</td></tr>
      <tr><td><a href='v1/metadata/host'>v1/metadata/host</a></td><td>GET</td><td>JSON</td><td>Show host metadata (gather-facts)</td></tr>
      <tr><td><a href='metrics'>metrics</a></td><td>GET</td><td>text</td><td>Prometheus metrics for the exporter itself</td></tr>
    </table>
</body>
</html>`

// handler serves the cache over HTTP. TLS and binding are wired by the
// Daemon; the handler itself is transport-agnostic, which keeps it
// directly testable.
type handler struct {
	cache   *Cache
	token   string
	log     zerolog.Logger
	metrics http.Handler
}

func newHandler(cache *Cache, token string, reg *prometheus.Registry, log zerolog.Logger) *handler {
	h := &handler{cache: cache, token: token, log: log.With().Str("component", "exporter.http").Logger()}
	if reg != nil {
		h.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	return h
}

func (h *handler) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(auth), []byte("Bearer "+h.token)) == 1
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.log.Info().Str("client", r.RemoteAddr).Str("method", r.Method).Str("path", r.URL.Path).Msg("request")

	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexPage))
		return
	}
	if !h.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path == "/metrics" && h.metrics != nil {
		h.metrics.ServeHTTP(w, r)
		return
	}

	tasks := h.cache.Health().Tasks
	var body any
	status := http.StatusOK

	switch r.URL.Path {
	case "/v1/metadata":
		body = h.cache.ToJSON()
		inactive := 0
		total := 0
		for name, st := range tasks {
			if name == TaskHTTPServer {
				continue
			}
			total++
			if st == TaskInactive {
				inactive++
			}
		}
		if inactive == total && total > 0 {
			status = http.StatusInternalServerError
		} else if inactive > 0 {
			status = http.StatusPartialContent
		}
	case "/v1/metadata/health":
		body = h.cache.Health()
	case "/v1/metadata/host", "/v1/metadata/disks", "/v1/metadata/daemons":
		slot := strings.TrimPrefix(r.URL.Path, "/v1/metadata/")
		body = h.cache.Task(slot)
		if tasks[slot] == TaskInactive {
			status = http.StatusNoContent
		}
	default:
		msg := "Valid URLs are: /v1/metadata, /v1/metadata/health, /v1/metadata/disks, /v1/metadata/daemons, /v1/metadata/host"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": msg})
		return
	}

	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
