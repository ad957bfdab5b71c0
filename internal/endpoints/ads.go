package endpoints

import (
	"errors"
	"net/http"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/ads"
	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// AdsHandler serves the ad endpoints. Every command runs on the host loop so
// it never races a frame.
type AdsHandler struct {
	router *ads.Router
	exec   Executor
}

// NewAdsHandler creates the ad endpoints handler
func NewAdsHandler(router *ads.Router, exec Executor) *AdsHandler {
	return &AdsHandler{router: router, exec: exec}
}

// Register mounts the ad routes on mux
func (h *AdsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ads/events", h.Events)
	mux.HandleFunc("/ads/interstitial/show", h.ShowInterstitial)
	mux.HandleFunc("/ads/banner/show", h.ShowBanner)
	mux.HandleFunc("/ads/banner/hide", h.HideBanner)
	mux.HandleFunc("/ads/noads", h.NoAds)
	mux.HandleFunc("/app/foreground", h.Foreground)
}

// Events accepts SDK callbacks forwarded by the client
func (h *AdsHandler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event ads.Event
	if err := decodeBody(r, &event); err != nil {
		writeError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}
	if event.Format == "" || event.Kind == "" {
		writeError(w, "format and kind are required", http.StatusBadRequest)
		return
	}

	var err error
	if !onLoop(w, r, h.exec, func() { err = h.router.HandleEvent(event) }) {
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ShowResponse is the result of a show command
type ShowResponse struct {
	Shown bool   `json:"shown"`
	Error string `json:"error,omitempty"`
}

// ShowInterstitial shows the interstitial if one is ready. The close and
// failure callbacks arrive later as SDK events.
func (h *AdsHandler) ShowInterstitial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m := h.router.Interstitial()
	if m == nil {
		writeError(w, "interstitial not configured", http.StatusNotFound)
		return
	}

	log := logger.HTTP()
	cb := ads.Callbacks{
		OnShown: func() { log.Debug().Msg("Interstitial shown") },
		OnFail:  func(err error) { log.Debug().Err(err).Msg("Interstitial failed") },
	}

	var err error
	if !onLoop(w, r, h.exec, func() { err = m.Show(cb) }) {
		return
	}
	writeShowResult(w, err)
}

// BannerRequest names the inline format to show or hide
type BannerRequest struct {
	Format string `json:"format"`
}

// BannerResponse is the result of a banner command
type BannerResponse struct {
	Format  ads.Format `json:"format,omitempty"`
	Visible bool       `json:"visible"`
	Error   string     `json:"error,omitempty"`
}

// ShowBanner puts an inline format on screen. The load itself completes in
// the background.
func (h *AdsHandler) ShowBanner(w http.ResponseWriter, r *http.Request) {
	h.banner(w, r, true)
}

// HideBanner takes an inline format off screen
func (h *AdsHandler) HideBanner(w http.ResponseWriter, r *http.Request) {
	h.banner(w, r, false)
}

func (h *AdsHandler) banner(w http.ResponseWriter, r *http.Request, show bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BannerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}
	format, err := ads.ParseFormat(req.Format)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if format.Fullscreen() {
		writeError(w, "format must be an inline format", http.StatusBadRequest)
		return
	}

	if !onLoop(w, r, h.exec, func() {
		if show {
			err = h.router.ShowBanner(format)
		} else {
			err = h.router.HideBanner(format)
		}
	}) {
		return
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, BannerResponse{Format: format, Visible: show})
	case errors.Is(err, ads.ErrNotConfigured):
		writeJSON(w, http.StatusNotFound, BannerResponse{Format: format, Error: err.Error()})
	case errors.Is(err, ads.ErrAdsDisabled):
		writeJSON(w, http.StatusConflict, BannerResponse{Format: format, Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, BannerResponse{Format: format, Error: err.Error()})
	}
}

// Foreground reports the app returning to the foreground, which shows an
// app-open ad after the first-open show has happened
func (h *AdsHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m := h.router.AppOpen()
	if m == nil {
		writeJSON(w, http.StatusOK, ShowResponse{})
		return
	}

	var (
		err       error
		firstDone bool
	)
	if !onLoop(w, r, h.exec, func() {
		firstDone = m.FirstShowDone()
		err = m.OnForeground()
	}) {
		return
	}
	if !firstDone {
		writeJSON(w, http.StatusOK, ShowResponse{})
		return
	}
	writeShowResult(w, err)
}

// NoAdsRequest sets the no-ads purchase state
type NoAdsRequest struct {
	Purchased bool `json:"purchased"`
}

// NoAds applies the no-ads purchase
func (h *AdsHandler) NoAds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req NoAdsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}
	if !onLoop(w, r, h.exec, func() { h.router.SetNoAds(req.Purchased) }) {
		return
	}
	log := logger.HTTP()
	log.Info().Bool("purchased", req.Purchased).Msg("No-ads state changed")
	writeJSON(w, http.StatusOK, map[string]bool{"no_ads": req.Purchased})
}

// writeShowResult maps a show outcome to a status code. Expected refusals
// are 409, anything else is a server error.
func writeShowResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ShowResponse{Shown: true})
	case errors.Is(err, ads.ErrAdsDisabled),
		errors.Is(err, ads.ErrNotReady),
		errors.Is(err, ads.ErrShowInProgress),
		errors.Is(err, ads.ErrCooldown),
		errors.Is(err, ads.ErrAdStale):
		writeJSON(w, http.StatusConflict, ShowResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, ShowResponse{Error: err.Error()})
	}
}
