package endpoints

import (
	"net/http"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
)

// ConfigHandler handles /config requests
type ConfigHandler struct {
	config ConfigView
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(config ConfigView) *ConfigHandler {
	return &ConfigHandler{config: config}
}

// ConfigResponse is the body of GET /config
type ConfigResponse struct {
	Ready  bool                 `json:"ready"`
	State  string               `json:"state"`
	Values []remoteconfig.Value `json:"values"`
}

// ServeHTTP returns every key, or only the one named by ?key=
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := ConfigResponse{
		Ready: h.config.IsReady(),
		State: h.config.State().String(),
	}
	if key := r.URL.Query().Get("key"); key != "" {
		resp.Values = []remoteconfig.Value{h.config.Get(remoteconfig.Key(key))}
	} else {
		resp.Values = h.config.Snapshot()
	}

	writeJSON(w, http.StatusOK, resp)
}
