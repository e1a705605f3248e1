package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tukib/dtec-messenger-electron/internal/middleware"
	"github.com/tukib/dtec-messenger-electron/internal/ws"
)

func newRouter(hub *ws.Hub, handler ws.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.LoggingMiddleware)

	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, handler, w, r)
	})
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"connections": hub.Count(),
		})
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}
