package mogilefs

import "time"

// Metrics is the sink a client reports to, keyed by operation name:
// "requests.<op>" is incremented on every attempt and
// "request_timing.<op>" times the whole retry envelope.
// Implementations MUST be cheap and non-blocking.
type Metrics interface {
	Incr(name string)
	Timing(name string, d time.Duration)
}

// NopMetrics is the default no-op.
type NopMetrics struct{}

func (NopMetrics) Incr(string)                  {}
func (NopMetrics) Timing(string, time.Duration) {}

// MetricsOrNop returns m, or NopMetrics when m is nil.
func MetricsOrNop(m Metrics) Metrics {
	return Coalesce[Metrics](m, NopMetrics{})
}

// MultiMetrics fans every measurement out to each sink in order.
type MultiMetrics []Metrics

func (m MultiMetrics) Incr(name string) {
	for _, s := range m {
		s.Incr(name)
	}
}

func (m MultiMetrics) Timing(name string, d time.Duration) {
	for _, s := range m {
		s.Timing(name, d)
	}
}
