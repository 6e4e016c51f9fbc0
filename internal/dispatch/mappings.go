package dispatch

import (
	"net/http"
	"sort"

	"github.com/elidickinson/ccmux-go/internal/config"
)

// resolveMappings returns modelConfig's provider bindings, either filtered
// down to the single X-Provider-header-forced provider, or sorted by
// ascending priority. An empty result after filtering is an error: the
// caller asked for a provider that isn't bound to this model.
func resolveMappings(modelConfig config.ModelConfig, r *http.Request) ([]config.ModelMapping, error) {
	forced := r.Header.Get("X-Provider")

	mappings := append([]config.ModelMapping(nil), modelConfig.Mappings...)

	if forced != "" {
		filtered := mappings[:0]
		for _, m := range mappings {
			if m.Provider == forced {
				filtered = append(filtered, m)
			}
		}
		if len(filtered) == 0 {
			return nil, routingError("provider %q not found in mappings for model %q", forced, modelConfig.Name)
		}
		return filtered, nil
	}

	sort.Slice(mappings, func(i, j int) bool { return mappings[i].Priority < mappings[j].Priority })
	return mappings, nil
}
