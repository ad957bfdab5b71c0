package ads

import (
	"context"
	"fmt"
	"time"
)

// Units maps each format to its ad unit id. Formats without a unit are not
// managed.
type Units map[Format]string

// Router owns one manager per configured format and routes SDK callbacks
type Router struct {
	gate         *Gate
	interstitial *Interstitial
	appOpen      *AppOpen
	banners      map[Format]*Banner

	// wanted holds the inline formats that should be on screen whenever the
	// gate allows them
	wanted map[Format]bool
	ctx    context.Context
}

// RouterConfig carries the config-derived durations the managers read
type RouterConfig struct {
	Units                Units
	InterstitialCooldown func() time.Duration
	AppOpenStartDelay    func() time.Duration
}

// NewRouter creates the managers for every configured unit
func NewRouter(cfg RouterConfig, deps Deps) (*Router, error) {
	if deps.Gate == nil {
		return nil, fmt.Errorf("ads router requires a gate")
	}
	if deps.SDK == nil {
		return nil, fmt.Errorf("ads router requires an SDK")
	}

	r := &Router{
		gate:    deps.Gate,
		banners: make(map[Format]*Banner),
		wanted:  make(map[Format]bool),
		ctx:     context.Background(),
	}
	for format, unit := range cfg.Units {
		if unit == "" {
			continue
		}
		switch format {
		case FormatInterstitial:
			r.interstitial = NewInterstitial(unit, cfg.InterstitialCooldown, deps)
		case FormatAppOpen:
			r.appOpen = NewAppOpen(unit, cfg.AppOpenStartDelay, deps)
		default:
			b, err := NewBanner(format, unit, deps)
			if err != nil {
				return nil, err
			}
			r.banners[format] = b
		}
	}
	return r, nil
}

// Gate returns the shared gate
func (r *Router) Gate() *Gate {
	return r.gate
}

// Interstitial returns the interstitial manager, or nil
func (r *Router) Interstitial() *Interstitial {
	return r.interstitial
}

// AppOpen returns the app-open manager, or nil
func (r *Router) AppOpen() *AppOpen {
	return r.appOpen
}

// Banner returns the manager of an inline format, or nil
func (r *Router) Banner(f Format) *Banner {
	return r.banners[f]
}

// Start loads the fullscreen formats and shows every inline format. Later
// banner loads run under ctx.
func (r *Router) Start(ctx context.Context) {
	r.ctx = ctx
	if r.interstitial != nil {
		r.interstitial.Load(ctx)
	}
	if r.appOpen != nil {
		r.appOpen.Load(ctx)
	}
	for f, b := range r.banners {
		r.wanted[f] = true
		b.LoadAndShow(ctx)
	}
}

// ShowBanner puts an inline format on screen, loading it first when needed
func (r *Router) ShowBanner(f Format) error {
	b, ok := r.banners[f]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConfigured, f)
	}
	r.wanted[f] = true
	if !r.gate.Allows(f) {
		return ErrAdsDisabled
	}
	b.LoadAndShow(r.ctx)
	return nil
}

// HideBanner takes an inline format off screen until it is shown again
func (r *Router) HideBanner(f Format) error {
	b, ok := r.banners[f]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConfigured, f)
	}
	delete(r.wanted, f)
	b.Hide()
	return nil
}

// Update drives retries and the first-open show
func (r *Router) Update(now time.Time) {
	if r.interstitial != nil {
		r.interstitial.Update(now)
	}
	if r.appOpen != nil {
		r.appOpen.Update(now)
	}
	for _, b := range r.banners {
		b.Update(now)
	}
}

// SetNoAds applies the no-ads purchase. Buying hides inline ads; clearing
// the purchase brings back the ones that were on screen.
func (r *Router) SetNoAds(purchased bool) {
	r.gate.SetNoAds(purchased)
	for f, b := range r.banners {
		switch {
		case purchased:
			b.Hide()
		case r.wanted[f] && !b.Visible():
			b.LoadAndShow(r.ctx)
		}
	}
}

// HandleEvent routes an SDK callback to the manager of its format
func (r *Router) HandleEvent(e Event) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	h := r.handler(e.Format)
	if h == nil {
		return fmt.Errorf("no manager for format %q", e.Format)
	}
	h.HandleEvent(e)
	return nil
}

func (r *Router) handler(f Format) Handler {
	switch f {
	case FormatInterstitial:
		if r.interstitial != nil {
			return r.interstitial
		}
	case FormatAppOpen:
		if r.appOpen != nil {
			return r.appOpen
		}
	default:
		if b, ok := r.banners[f]; ok {
			return b
		}
	}
	return nil
}
