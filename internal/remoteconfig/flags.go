package remoteconfig

// AdsEnabled is the master switch for every ad format
func (s *Store) AdsEnabled() bool {
	return s.Bool(KeyAdsDisplay)
}

// OpenAdsEnabled gates app-open ads
func (s *Store) OpenAdsEnabled() bool {
	return s.AdsEnabled() && s.Bool(KeyOpenAdsEnable)
}

// IdleAdsEnabled gates the idle interstitial trigger. ads_display is
// checked by the interstitial gate at show time.
func (s *Store) IdleAdsEnabled() bool {
	return s.Bool(KeyAdmob15sEnable) && s.Bool(KeyIdleAdsEnable)
}
