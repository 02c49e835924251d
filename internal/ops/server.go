// Package ops exposes the monitor's operational HTTP surface: liveness, the
// last cycle report, and a manual cycle trigger.
package ops

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgeandnode/graph-ixi/internal/monitor"
	"github.com/edgeandnode/graph-ixi/pkg/httpx"
)

type Server struct {
	Monitor *monitor.Monitor
	Log     *slog.Logger
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		report, ok := s.Monitor.LastReport()
		if !ok {
			httpx.WriteJSON(w, 200, map[string]any{
				"request_id": httpx.NewRequestID(),
				"status":     "waiting",
			})
			return
		}
		httpx.WriteJSON(w, 200, map[string]any{
			"request_id": httpx.NewRequestID(),
			"status":     "ok",
			"last_cycle": report,
		})
	})

	r.Post("/cycles/run", func(w http.ResponseWriter, r *http.Request) {
		report, err := s.Monitor.RunCycle(r.Context())
		if err != nil {
			if errors.Is(err, monitor.ErrCycleInProgress) {
				httpx.WriteError(w, http.StatusConflict, "CYCLE_IN_PROGRESS", err.Error())
				return
			}
			s.Log.Error("manual cycle", "err", err)
			httpx.WriteError(w, http.StatusBadGateway, "CYCLE_FAILED", err.Error())
			return
		}
		httpx.WriteJSON(w, 200, map[string]any{
			"request_id": httpx.NewRequestID(),
			"cycle":      report,
		})
	})

	return r
}
