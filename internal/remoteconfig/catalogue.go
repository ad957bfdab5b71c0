// Package remoteconfig provides the readiness-gated configuration store
// that seeds ad flags from defaults and overwrites them from a remote source.
package remoteconfig

import (
	"sort"
)

// Key names a configuration value
type Key string

// Keys consumed by the ad managers
const (
	KeyAdsDisplay       Key = "ads_display"
	KeyCountDown        Key = "countDown"
	KeyOpenAdsEnable    Key = "openads_enable"
	KeyTimeLoadStartApp Key = "time_load_startapp"
	KeyIdleTime         Key = "idle_time"
	KeyIdleMinInterval  Key = "idle_min_interval"
	KeyAdmob15sEnable   Key = "admob_15s_enable"

	// Legacy keys kept for older client builds
	KeyIdleAdsEnable            Key = "idle_ads_enable"
	KeyNativeAdsEnable          Key = "native_ads_enable"
	KeyInterAdsEnable           Key = "inter_ads_enable"
	KeyBannerAdsEnable          Key = "banner_ads_enable"
	KeyRectangleAdsEnable       Key = "rectangle_ads_enable"
	KeyAdsInterval              Key = "ads_interval"
	KeyAfkTime                  Key = "afk_time"
	KeyShowAfkAdsAfterLevel     Key = "show_afk_ads_after_level"
	KeyShowFullAdsAfterLevel    Key = "show_full_ads_after_level"
	KeyShowIAP                  Key = "show_iap"
	KeyCountDown15sInterstitial Key = "countDown_15s_interstitial_admob"
)

// Kind is the value type of a key
type Kind int

const (
	// KindInt is a whole number, usually seconds
	KindInt Kind = iota
	// KindBool is stored as 0 or 1
	KindBool
)

// String returns the kind name
func (k Kind) String() string {
	if k == KindBool {
		return "bool"
	}
	return "int"
}

// Range is the documented valid range of a key. HasMax=false means unbounded above.
type Range struct {
	Min    int64
	Max    int64
	HasMin bool
	HasMax bool
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v int64) bool {
	if r.HasMin && v < r.Min {
		return false
	}
	if r.HasMax && v > r.Max {
		return false
	}
	return true
}

// Lookup reads a value from the incoming payload
type Lookup func(Key) (int64, bool)

// Corrector maps a fetched value into range. It returns the corrected
// value and whether a correction was applied.
type Corrector func(v int64, payload Lookup) (int64, bool)

// Definition describes one key: its type, default and correction policy
type Definition struct {
	Key     Key
	Kind    Kind
	Default int64
	Range   Range
	Correct Corrector
	// AliasOf names a legacy key that, when fetched with a positive value,
	// replaces this key's fetched value before correction.
	AliasOf Key
}

// Catalogue is the set of known keys
type Catalogue struct {
	defs map[Key]Definition
}

// NewCatalogue builds a catalogue; later definitions replace earlier ones
func NewCatalogue(defs ...Definition) *Catalogue {
	c := &Catalogue{defs: make(map[Key]Definition, len(defs))}
	for _, d := range defs {
		if d.Kind == KindBool && d.Correct == nil {
			d.Correct = Flag()
		}
		c.defs[d.Key] = d
	}
	return c
}

// Lookup returns the definition of a key
func (c *Catalogue) Lookup(key Key) (Definition, bool) {
	d, ok := c.defs[key]
	return d, ok
}

// Keys returns all keys sorted by name
func (c *Catalogue) Keys() []Key {
	keys := make([]Key, 0, len(c.defs))
	for k := range c.defs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of keys
func (c *Catalogue) Len() int {
	return len(c.defs)
}

// DefaultCatalogue returns the keys used by the game client with their
// factory defaults and clamp rules
func DefaultCatalogue() *Catalogue {
	return NewCatalogue(
		boolKey(KeyAdsDisplay, 1),
		Definition{
			Key:     KeyCountDown,
			Kind:    KindInt,
			Default: 45,
			Range:   Range{Min: 5, Max: 3600, HasMin: true, HasMax: true},
			Correct: countDownCorrector(45),
		},
		boolKey(KeyOpenAdsEnable, 1),
		Definition{
			Key:     KeyTimeLoadStartApp,
			Kind:    KindInt,
			Default: 3,
			Range:   Range{Min: 1, Max: 10, HasMin: true, HasMax: true},
			Correct: Replace(1, 10, 2, 5),
		},
		Definition{
			Key:     KeyIdleTime,
			Kind:    KindInt,
			Default: 30,
			Range:   Range{Min: 10, HasMin: true},
			Correct: ClampMin(10),
			AliasOf: KeyCountDown15sInterstitial,
		},
		Definition{
			Key:     KeyIdleMinInterval,
			Kind:    KindInt,
			Default: 120,
			Range:   Range{Min: 30, HasMin: true},
			Correct: ClampMin(30),
		},
		boolKey(KeyAdmob15sEnable, 1),

		boolKey(KeyIdleAdsEnable, 1),
		boolKey(KeyNativeAdsEnable, 1),
		boolKey(KeyInterAdsEnable, 1),
		boolKey(KeyBannerAdsEnable, 1),
		boolKey(KeyRectangleAdsEnable, 1),
		boolKey(KeyShowIAP, 1),
		intKey(KeyAdsInterval, 90),
		intKey(KeyAfkTime, 15),
		intKey(KeyShowAfkAdsAfterLevel, 2),
		intKey(KeyShowFullAdsAfterLevel, 3),
		intKey(KeyCountDown15sInterstitial, 15),
	)
}

func boolKey(k Key, def int64) Definition {
	return Definition{
		Key:     k,
		Kind:    KindBool,
		Default: def,
		Range:   Range{Min: 0, Max: 1, HasMin: true, HasMax: true},
		Correct: Flag(),
	}
}

func intKey(k Key, def int64) Definition {
	return Definition{Key: k, Kind: KindInt, Default: def}
}
