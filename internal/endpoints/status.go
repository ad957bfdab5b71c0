package endpoints

import (
	"net/http"
	"time"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/ads"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/idle"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
)

// ConfigView is the read side of the remote config store
type ConfigView interface {
	State() remoteconfig.State
	IsReady() bool
	Snapshot() []remoteconfig.Value
	Get(key remoteconfig.Key) remoteconfig.Value
	IdleAdsEnabled() bool
}

// StatusHandler handles /status requests
type StatusHandler struct {
	config  ConfigView
	trigger *idle.Trigger
	router  *ads.Router
	now     func() time.Time
}

// NewStatusHandler creates a new status handler. trigger and router may be nil.
func NewStatusHandler(config ConfigView, trigger *idle.Trigger, router *ads.Router) *StatusHandler {
	return &StatusHandler{
		config:  config,
		trigger: trigger,
		router:  router,
		now:     time.Now,
	}
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Config    ConfigStatus `json:"config"`
	Idle      *IdleStatus  `json:"idle,omitempty"`
	Ads       *AdsStatus   `json:"ads,omitempty"`
}

// ConfigStatus summarises readiness
type ConfigStatus struct {
	State string `json:"state"`
	Ready bool   `json:"ready"`
}

// IdleStatus is the idle trigger state
type IdleStatus struct {
	Enabled          bool    `json:"enabled"`
	ThresholdSeconds float64 `json:"threshold_seconds"`
	MinIntervalSecs  float64 `json:"min_interval_seconds"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	CooldownSeconds  float64 `json:"cooldown_seconds"`
	Busy             bool    `json:"busy"`
	Fires            uint64  `json:"fires"`
}

// AdsStatus is the state of every managed format
type AdsStatus struct {
	CanShowAds   bool                    `json:"can_show_ads"`
	NoAds        bool                    `json:"no_ads"`
	Interstitial *InterstitialStatus     `json:"interstitial,omitempty"`
	AppOpen      *AppOpenStatus          `json:"app_open,omitempty"`
	Banners      map[string]BannerStatus `json:"banners,omitempty"`
}

// InterstitialStatus is the interstitial manager state
type InterstitialStatus struct {
	Ready           bool    `json:"ready"`
	Showing         bool    `json:"showing"`
	RetryPending    bool    `json:"retry_pending"`
	CooldownSeconds float64 `json:"cooldown_seconds"`
}

// AppOpenStatus is the app-open manager state
type AppOpenStatus struct {
	Fresh         bool `json:"fresh"`
	FirstShowDone bool `json:"first_show_done"`
}

// BannerStatus is the state of one inline format
type BannerStatus struct {
	Loaded       bool `json:"loaded"`
	RetryPending bool `json:"retry_pending"`
}

// ServeHTTP handles status requests
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Config: ConfigStatus{
			State: h.config.State().String(),
			Ready: h.config.IsReady(),
		},
	}
	if !resp.Config.Ready {
		resp.Status = "starting"
	}

	if h.trigger != nil {
		cfg := h.trigger.Config()
		resp.Idle = &IdleStatus{
			Enabled:          h.config.IdleAdsEnabled(),
			ThresholdSeconds: cfg.Threshold.Seconds(),
			MinIntervalSecs:  cfg.MinInterval.Seconds(),
			ElapsedSeconds:   h.trigger.Elapsed().Seconds(),
			CooldownSeconds:  h.trigger.CooldownLeft().Seconds(),
			Busy:             h.trigger.Busy(),
			Fires:            h.trigger.Fires(),
		}
	}

	if h.router != nil {
		resp.Ads = adsStatus(h.router)
	}

	writeJSON(w, http.StatusOK, resp)
}

func adsStatus(router *ads.Router) *AdsStatus {
	gate := router.Gate()
	status := &AdsStatus{
		CanShowAds: gate.CanShowAds(),
		NoAds:      gate.NoAds(),
	}

	if m := router.Interstitial(); m != nil {
		status.Interstitial = &InterstitialStatus{
			Ready:           m.IsReady(),
			Showing:         m.Showing(),
			RetryPending:    m.RetryPending(),
			CooldownSeconds: m.CooldownLeft().Seconds(),
		}
	}
	if m := router.AppOpen(); m != nil {
		status.AppOpen = &AppOpenStatus{
			Fresh:         m.IsFresh(),
			FirstShowDone: m.FirstShowDone(),
		}
	}
	for _, f := range ads.Formats {
		b := router.Banner(f)
		if b == nil {
			continue
		}
		if status.Banners == nil {
			status.Banners = make(map[string]BannerStatus)
		}
		status.Banners[f.String()] = BannerStatus{
			Loaded:       b.Loaded(),
			RetryPending: b.RetryPending(),
		}
	}
	return status
}

// HealthHandler answers liveness probes
type HealthHandler struct{}

// ServeHTTP handles health requests
func (HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
