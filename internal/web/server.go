package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxEventBytes 单个注入事件的大小上限
const maxEventBytes = 1 << 20

// Submitter 接收注入的入站事件
type Submitter interface {
	Submit(id string, body []byte)
	Pending() int
}

// MetricsHandler 暴露给定 Gatherer 中的指标
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewMux 组装 API 路由：指标、决策推送、状态快照、健康检查和事件注入
func NewMux(gatherer prometheus.Gatherer, hub *Hub, st *StateTracker, submitter Submitter, logger *slog.Logger) *http.ServeMux {
	logger = logger.With("component", "api")

	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(gatherer))
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st.GetStateSnapshot())
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"pending":    submitter.Pending(),
			"ws_clients": hub.Clients(),
		})
	})
	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes+1))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) > maxEventBytes {
			http.Error(w, "event too large", http.StatusRequestEntityTooLarge)
			return
		}
		if !json.Valid(body) {
			logger.Warn("注入的事件不是合法的 JSON")
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		id := r.Header.Get("X-Event-ID")
		if id == "" {
			id = "api-" + uuid.NewString()
		}
		submitter.Submit(id, body)
		logger.Info("已接收注入的事件", "event_id", id)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "id": id})
	})
	return mux
}
