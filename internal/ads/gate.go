package ads

import (
	"sync/atomic"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
)

// FlagReader reads boolean config flags. *remoteconfig.Store satisfies it.
type FlagReader interface {
	Bool(key remoteconfig.Key) bool
}

// Gate decides whether ads may be shown at all
type Gate struct {
	flags FlagReader
	noAds atomic.Bool
}

// NewGate creates a gate reading flags from cfg
func NewGate(flags FlagReader) *Gate {
	return &Gate{flags: flags}
}

// SetNoAds records the no-ads purchase
func (g *Gate) SetNoAds(purchased bool) {
	g.noAds.Store(purchased)
}

// NoAds reports whether the no-ads purchase is active
func (g *Gate) NoAds() bool {
	return g.noAds.Load()
}

// CanShowAds is the master switch: no purchase and ads_display on
func (g *Gate) CanShowAds() bool {
	if g.noAds.Load() {
		return false
	}
	return g.flags.Bool(remoteconfig.KeyAdsDisplay)
}

// Allows reports whether format may load and show
func (g *Gate) Allows(f Format) bool {
	if !g.CanShowAds() {
		return false
	}
	key := f.enableKey()
	if key == "" {
		return false
	}
	return g.flags.Bool(key)
}
