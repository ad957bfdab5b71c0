// Package analytics forwards ad lifecycle events and exceptions to an
// analytics collector
package analytics

import (
	"github.com/rs/zerolog"

	"github.com/StreetsDigital/thenexusengine/adgate/pkg/logger"
)

// Params are the event parameters
type Params map[string]interface{}

// Sink receives analytics events and exceptions
type Sink interface {
	LogEvent(name string, params Params)
	LogException(err error, where string)
}

// LogSink writes events to the structured log
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink writing to the analytics component logger
func NewLogSink() *LogSink {
	return &LogSink{log: logger.Analytics()}
}

// LogEvent logs the event at debug level
func (s *LogSink) LogEvent(name string, params Params) {
	s.log.Debug().Str("event", name).Fields(map[string]interface{}(params)).Msg("Analytics event")
}

// LogException logs the error
func (s *LogSink) LogException(err error, where string) {
	s.log.Error().Err(err).Str("where", where).Msg("Exception reported")
}

// Multi fans out to several sinks
type Multi []Sink

// LogEvent forwards to every sink
func (m Multi) LogEvent(name string, params Params) {
	for _, s := range m {
		s.LogEvent(name, params)
	}
}

// LogException forwards to every sink
func (m Multi) LogException(err error, where string) {
	for _, s := range m {
		s.LogException(err, where)
	}
}

// Nop drops everything
type Nop struct{}

func (Nop) LogEvent(string, Params)    {}
func (Nop) LogException(error, string) {}
