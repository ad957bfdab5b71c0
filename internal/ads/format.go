// Package ads manages the lifecycle of every ad format: load, retry, show
// and forwarding of SDK callbacks to analytics
package ads

import (
	"fmt"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/remoteconfig"
)

// Format is an ad placement type
type Format string

const (
	FormatBanner            Format = "banner"
	FormatCollapsibleBanner Format = "collapsible_banner"
	FormatRectangleBanner   Format = "rectangle_banner"
	FormatInterstitial      Format = "interstitial"
	FormatNative            Format = "native"
	FormatAppOpen           Format = "app_open"
)

// Formats lists every supported format
var Formats = []Format{
	FormatBanner,
	FormatCollapsibleBanner,
	FormatRectangleBanner,
	FormatInterstitial,
	FormatNative,
	FormatAppOpen,
}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown ad format %q", s)
}

func (f Format) String() string {
	return string(f)
}

// Fullscreen reports whether the format covers the whole screen
func (f Format) Fullscreen() bool {
	return f == FormatInterstitial || f == FormatAppOpen
}

// enableKey is the per-format switch in remote config
func (f Format) enableKey() remoteconfig.Key {
	switch f {
	case FormatBanner, FormatCollapsibleBanner:
		return remoteconfig.KeyBannerAdsEnable
	case FormatRectangleBanner:
		return remoteconfig.KeyRectangleAdsEnable
	case FormatNative:
		return remoteconfig.KeyNativeAdsEnable
	case FormatInterstitial:
		return remoteconfig.KeyInterAdsEnable
	case FormatAppOpen:
		return remoteconfig.KeyOpenAdsEnable
	}
	return ""
}
