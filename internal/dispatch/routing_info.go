package dispatch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const recentRequestsWindow = 20

type routingInfo struct {
	Model     string   `json:"model"`
	Provider  string   `json:"provider"`
	RouteType string   `json:"route_type"`
	Timestamp string   `json:"timestamp"`
	Recent    []string `json:"recent"`
}

// writeRoutingInfo records the most recent routing decision to
// ${HOME}/.ccmux/last_routing.json for the statusline script to read. It
// keeps a rolling history of the last recentRequestsWindow decisions.
// Failures are logged at debug level and otherwise ignored: this is a
// best-effort side channel, never load-bearing for the response itself.
func writeRoutingInfo(logger *zap.Logger, model, provider, routeType string) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".ccmux", "last_routing.json")

	var existing routingInfo
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &existing)
	}

	entry := model + "@" + provider
	recent := append([]string{entry}, existing.Recent...)
	if len(recent) > recentRequestsWindow {
		recent = recent[:recentRequestsWindow]
	}

	info := routingInfo{
		Model:     model,
		Provider:  provider,
		RouteType: routeType,
		Timestamp: time.Now().Format("15:04:05"),
		Recent:    recent,
	}

	data, err := json.Marshal(info)
	if err != nil {
		logger.Debug("failed to serialize routing info", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Debug("failed to create routing info dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Debug("failed to write routing info", zap.Error(err))
	}
}
