package dispatch

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
)

// handleHealth serves GET /health.
func (s *State) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ccmux"})
}

// handleAdminIndex serves GET /, a minimal status page. The full interactive
// admin UI is a separate static asset outside this module's scope; this
// handler only needs to exist so the route resolves.
func (s *State) handleAdminIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(adminIndexHTML))
}

const adminIndexHTML = `<!DOCTYPE html>
<html>
<head><title>ccmux</title></head>
<body>
<h1>ccmux</h1>
<p>Multi-provider LLM gateway. See <a href="/api/providers">/api/providers</a>,
<a href="/api/models-config">/api/models-config</a>, and <a href="/api/config/json">/api/config/json</a>.</p>
</body>
</html>`

// handleProviders serves GET /api/providers.
func (s *State) handleProviders(w http.ResponseWriter, r *http.Request) {
	inner := s.snapshot()
	writeJSON(w, http.StatusOK, inner.config.Providers)
}

// handleModelsConfig serves GET /api/models-config.
func (s *State) handleModelsConfig(w http.ResponseWriter, r *http.Request) {
	inner := s.snapshot()
	writeJSON(w, http.StatusOK, inner.config.Models)
}

type routerConfigView struct {
	Default    string `json:"default"`
	Background string `json:"background,omitempty"`
	Think      string `json:"think,omitempty"`
	Websearch  string `json:"websearch,omitempty"`
}

// handleGetConfig serves GET /api/config, the router-only subset the admin
// form edits.
func (s *State) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	inner := s.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"server": map[string]any{"host": inner.config.Server.Host, "port": inner.config.Server.Port},
		"router": routerConfigView{
			Default:    inner.config.Router.Default,
			Background: inner.config.Router.Background,
			Think:      inner.config.Router.Think,
			Websearch:  inner.config.Router.Websearch,
		},
	})
}

// configFormUpdate is the form-encoded body POST /api/config accepts: the
// router's model slots only, not providers or model mappings.
type configFormUpdate struct {
	DefaultModel    string
	BackgroundModel string
	ThinkModel      string
	WebsearchModel  string
}

// handleUpdateConfig serves POST /api/config: it patches only the router's
// model-slot fields in the on-disk TOML file and leaves everything else
// untouched. Changes take effect on the next /api/reload or restart, not
// immediately — this endpoint writes the file; it doesn't swap live state.
func (s *State) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, s.logger, parseError("invalid form body: %v", err))
		return
	}
	update := configFormUpdate{
		DefaultModel:    r.FormValue("default_model"),
		BackgroundModel: r.FormValue("background_model"),
		ThinkModel:      r.FormValue("think_model"),
		WebsearchModel:  r.FormValue("websearch_model"),
	}
	if update.DefaultModel == "" {
		writeError(w, s.logger, parseError("default_model is required"))
		return
	}

	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		writeError(w, s.logger, parseError("failed to read config: %v", err))
		return
	}
	cfg.Router.Default = update.DefaultModel
	cfg.Router.Background = update.BackgroundModel
	cfg.Router.Think = update.ThinkModel
	cfg.Router.Websearch = update.WebsearchModel

	if err := config.Save(s.ConfigPath, cfg); err != nil {
		writeError(w, s.logger, parseError("failed to write config: %v", err))
		return
	}

	s.logger.Info("configuration updated via admin form")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<div>Configuration saved. Reload or restart to apply.</div>"))
}

// handleGetConfigJSON serves GET /api/config/json, the full configuration
// the admin UI's JSON editor operates on.
func (s *State) handleGetConfigJSON(w http.ResponseWriter, r *http.Request) {
	inner := s.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"server": map[string]any{"host": inner.config.Server.Host, "port": inner.config.Server.Port},
		"router": map[string]any{
			"default":          inner.config.Router.Default,
			"background":       inner.config.Router.Background,
			"think":            inner.config.Router.Think,
			"websearch":        inner.config.Router.Websearch,
			"auto_map_regex":   inner.config.Router.AutoMapRegex,
			"background_regex": inner.config.Router.BackgroundRegex,
			"prompt_rules":     inner.config.Router.PromptRules,
		},
		"providers": inner.config.Providers,
		"models":    inner.config.Models,
	})
}

// configJSONUpdate is the body POST /api/config/json accepts: a full,
// possibly-partial configuration snapshot. Router fields are patched
// individually (absent optional fields are removed from the saved TOML,
// matching the admin UI's semantics of "whatever I didn't send, clear");
// providers and models, when present, replace their sections wholesale.
type configJSONUpdate struct {
	Router *struct {
		Default         string `json:"default"`
		Background      string `json:"background"`
		Think           string `json:"think"`
		Websearch       string `json:"websearch"`
		AutoMapRegex    string `json:"auto_map_regex"`
		BackgroundRegex string `json:"background_regex"`
	} `json:"router"`
	Providers []config.ProviderConfig `json:"providers"`
	Models    []config.ModelConfig    `json:"models"`
}

// handleUpdateConfigJSON serves POST /api/config/json.
func (s *State) handleUpdateConfigJSON(w http.ResponseWriter, r *http.Request) {
	if !validateJSONContentType(r) {
		writeError(w, s.logger, parseError("Content-Type must be application/json"))
		return
	}
	var update configJSONUpdate
	if err := decodeJSONBodyLoose(w, r, &update); err != nil {
		writeError(w, s.logger, parseError("invalid JSON body: %v", err))
		return
	}

	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		writeError(w, s.logger, parseError("failed to read config: %v", err))
		return
	}

	if update.Router != nil {
		cfg.Router.Default = update.Router.Default
		cfg.Router.Think = update.Router.Think
		cfg.Router.Websearch = update.Router.Websearch
		cfg.Router.Background = update.Router.Background
		cfg.Router.AutoMapRegex = update.Router.AutoMapRegex
		cfg.Router.BackgroundRegex = update.Router.BackgroundRegex
	}
	if update.Providers != nil {
		cfg.Providers = update.Providers
	}
	if update.Models != nil {
		cfg.Models = update.Models
	}

	if err := config.Save(s.ConfigPath, cfg); err != nil {
		writeError(w, s.logger, parseError("failed to write config: %v", err))
		return
	}

	s.logger.Info("configuration updated via admin JSON editor")
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "configuration saved successfully"})
}

// handleReload serves POST /api/reload: re-reads the config file and
// atomically swaps in a freshly built router and provider registry, with no
// server restart required.
func (s *State) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		s.logger.Error("configuration reload failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "configuration reloaded"})
}
