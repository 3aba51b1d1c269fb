package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"floranav/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"graph": map[string]any{
			"nodes": s.Planner.Graph().NodeCount(),
		},
		"config": map[string]any{
			"LISTEN_ADDR":          s.Cfg.ListenAddr,
			"AUTH_MODE":            os.Getenv("AUTH_MODE"),
			"AVG_SPEED_KMH":        s.Cfg.AvgSpeedKmh,
			"MAX_DESTINATIONS":     s.Cfg.MaxDestinations,
			"COMPUTE_RPS":          s.Cfg.ComputeRPS,
			"COMPUTE_BURST":        s.Cfg.ComputeBurst,
			"WEBHOOK_MAX_ATTEMPTS": os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
			"HAS_DATABASE_URL":     s.Cfg.DatabaseURL != "",
			"HAS_REDIS_URL":        s.Cfg.RedisURL != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
