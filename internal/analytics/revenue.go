package analytics

// Ad revenue is reported by the SDK in micros of the currency unit
const microsPerUnit = 1_000_000

// DefaultCurrency is used when the SDK reports none
const DefaultCurrency = "USD"

// AdImpressionEvent is the revenue event name understood by analytics backends
const AdImpressionEvent = "ad_impression"

// Revenue converts a micros amount to currency units
func Revenue(micros int64, currency string) (float64, string) {
	if currency == "" {
		currency = DefaultCurrency
	}
	return float64(micros) / microsPerUnit, currency
}

// PaidEvent describes one paid callback
type PaidEvent struct {
	Source    string
	Format    string
	UnitID    string
	Micros    int64
	Currency  string
	Precision string
	Placement string
}

// AdImpressionParams builds the ad_impression parameters for a paid event
func AdImpressionParams(p PaidEvent) Params {
	value, currency := Revenue(p.Micros, p.Currency)
	source := p.Source
	if source == "" {
		source = "admob"
	}

	params := Params{
		"ad_platform": "admob",
		"ad_source":   source,
		"ad_format":   p.Format,
		"currency":    currency,
		"value":       value,
	}
	if p.UnitID != "" {
		params["ad_unit_id"] = p.UnitID
	}
	if p.Precision != "" {
		params["revenue_precision"] = p.Precision
	}
	if p.Placement != "" {
		params["placement"] = p.Placement
	}
	return params
}
