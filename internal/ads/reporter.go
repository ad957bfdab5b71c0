package ads

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/StreetsDigital/thenexusengine/adgate/internal/analytics"
	"github.com/StreetsDigital/thenexusengine/adgate/internal/host"
)

// Observer receives ad metrics
type Observer interface {
	ObserveAdEvent(format, kind string)
	ObserveRevenue(format, currency string, value float64)
	ObserveLoadRetry(format string)
}

type nopObserver struct{}

func (nopObserver) ObserveAdEvent(string, string)          {}
func (nopObserver) ObserveRevenue(string, string, float64) {}
func (nopObserver) ObserveLoadRetry(string)                {}

// Deps are the collaborators shared by every manager
type Deps struct {
	SDK        SDK
	Gate       *Gate
	Sink       analytics.Sink
	Observer   Observer
	Dispatcher host.Dispatcher
	Now        func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Sink == nil {
		d.Sink = analytics.Nop{}
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Dispatcher == nil {
		d.Dispatcher = host.Immediate{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// reporter forwards lifecycle events to analytics and metrics
type reporter struct {
	format   Format
	sink     analytics.Sink
	observer Observer
	log      zerolog.Logger
}

func (r reporter) event(e Event) {
	r.observer.ObserveAdEvent(string(r.format), string(e.Kind))

	if e.Kind == EventPaid {
		r.paid(e)
		return
	}

	params := analytics.Params{"ad_format": string(r.format)}
	if e.UnitID != "" {
		params["ad_unit_id"] = e.UnitID
	}
	if e.Placement != "" {
		params["placement"] = e.Placement
	}
	if e.Error != "" {
		params["error"] = e.Error
	}
	r.sink.LogEvent("ad_"+string(e.Kind), params)
}

func (r reporter) paid(e Event) {
	params := analytics.AdImpressionParams(analytics.PaidEvent{
		Source:    e.AdSource,
		Format:    string(r.format),
		UnitID:    e.UnitID,
		Micros:    e.ValueMicros,
		Currency:  e.Currency,
		Precision: e.Precision,
		Placement: e.Placement,
	})
	r.sink.LogEvent(analytics.AdImpressionEvent, params)

	value, _ := params["value"].(float64)
	currency, _ := params["currency"].(string)
	r.observer.ObserveRevenue(string(r.format), currency, value)

	r.log.Debug().
		Int64("micros", e.ValueMicros).
		Str("currency", currency).
		Float64("value", value).
		Msg("Paid event")
}

func (r reporter) exception(err error, where string) {
	r.log.Error().Err(err).Str("where", where).Msg("Ad SDK error")
	r.sink.LogException(err, where)
}

// errorText turns an SDK error into an event field
func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// isBenign reports show errors that are expected flow rather than SDK faults
func isBenign(err error) bool {
	return errors.Is(err, ErrAdsDisabled) ||
		errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrCooldown) ||
		errors.Is(err, ErrShowInProgress)
}
