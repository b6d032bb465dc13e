package client

import (
	"net/http"
	"time"

	"github.com/unkn0wn-root/mogilefs"
)

// MaxAttempts bounds the tries of one logical request.
const MaxAttempts = 3

// Options configures a Client. Only Trackers is required.
type Options struct {
	// Trackers is the list of tracker addresses (host:port).
	Trackers []string

	// Metrics receives requests.<op> and request_timing.<op>. Optional.
	Metrics mogilefs.Metrics
	Logger  mogilefs.Logger

	// HTTPClient performs the storage PUT of StoreData.
	HTTPClient *http.Client

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxLineSize caps a response line.
	MaxLineSize int
}

// Default returns options with every tunable set and no trackers.
func Default() Options {
	return Options{
		DialTimeout:  3 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		MaxLineSize:  1 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := Default()
	o.Metrics = mogilefs.MetricsOrNop(o.Metrics)
	o.Logger = mogilefs.LoggerOrNop(o.Logger)
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	o.DialTimeout = mogilefs.Coalesce(o.DialTimeout, d.DialTimeout)
	o.ReadTimeout = mogilefs.Coalesce(o.ReadTimeout, d.ReadTimeout)
	o.WriteTimeout = mogilefs.Coalesce(o.WriteTimeout, d.WriteTimeout)
	o.MaxLineSize = mogilefs.Coalesce(o.MaxLineSize, d.MaxLineSize)
	return o
}
