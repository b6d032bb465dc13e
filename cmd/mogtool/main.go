// Command mogtool is a command line client for MogileFS trackers.
//
//	mogtool -trackers 127.0.0.1:7001 -domain td store some/key ./file
//	mogtool -trackers 127.0.0.1:7001 -domain td list some/
package main

import (
	"context"
	"flag"
	"fmt"
	stdslog "log/slog"
	"os"
	"strings"
	"time"

	rmetrics "github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/client"
	logruslog "github.com/unkn0wn-root/mogilefs/log/logrus"
	slogadapter "github.com/unkn0wn-root/mogilefs/log/slog"
	zerologlog "github.com/unkn0wn-root/mogilefs/log/zerolog"
	"github.com/unkn0wn-root/mogilefs/metrics/async"
	"github.com/unkn0wn-root/mogilefs/metrics/gometrics"
	"github.com/unkn0wn-root/mogilefs/metrics/slogsink"
	"github.com/unkn0wn-root/mogilefs/metrics/statsd"
)

const usage = `usage: mogtool [flags] <command> [args]

commands:
  noop
  create-domain
  create-class <class> [mindevcount]
  store <key> <file|->
  paths <key>
  info <key>
  rename <from> <to>
  delete <key>
  list [prefix]
  updateclass <key> <class>

flags:
`

type config struct {
	trackers string
	domain   string
	class    string
	after    string
	limit    int
	timeout  time.Duration

	logKind  string
	verbose  bool
	statsdTo string
	prefix   string
	stats    bool
	traceMet bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.trackers, "trackers", os.Getenv("MOGILEFS_TRACKERS"), "comma-separated tracker addresses")
	flag.StringVar(&cfg.domain, "domain", "", "domain to operate on")
	flag.StringVar(&cfg.class, "class", "", "storage class for store")
	flag.StringVar(&cfg.after, "after", "", "list: start after this key")
	flag.IntVar(&cfg.limit, "limit", 0, "list: page size (0 = tracker default)")
	flag.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "overall deadline")

	flag.StringVar(&cfg.logKind, "log", "logrus", "log output: logrus|zerolog|slog")
	flag.BoolVar(&cfg.verbose, "v", false, "debug logging")
	flag.StringVar(&cfg.statsdTo, "statsd", "", "report request metrics to this statsd address")
	flag.StringVar(&cfg.prefix, "statsd-prefix", statsd.DefaultPrefix, "statsd metric prefix")
	flag.BoolVar(&cfg.stats, "stats", false, "print request metrics on exit")
	flag.BoolVar(&cfg.traceMet, "trace-metrics", false, "log every metric event")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(cfg, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "mogtool: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config, args []string) error {
	logger := newLogger(cfg.logKind, cfg.verbose)

	var sinks mogilefs.MultiMetrics
	if cfg.statsdTo != "" {
		s, err := statsd.New(statsd.Config{Address: cfg.statsdTo, Prefix: cfg.prefix})
		if err != nil {
			return fmt.Errorf("statsd: %w", err)
		}
		defer s.Close()
		a := async.New(s, 1, 1024)
		defer a.Close()
		sinks = append(sinks, a)
	}
	var registry rmetrics.Registry
	if cfg.stats {
		registry = rmetrics.NewRegistry()
		sinks = append(sinks, gometrics.New(registry, "mogilefs_client"))
	}
	if cfg.traceMet {
		sinks = append(sinks, slogsink.New(stdslog.New(stdslog.NewTextHandler(os.Stderr, nil)), slogsink.Options{Level: stdslog.LevelInfo}))
	}

	opts := client.Default()
	opts.Trackers = splitCSV(cfg.trackers)
	opts.Logger = logger
	if len(sinks) > 0 {
		opts.Metrics = sinks
	}
	c := client.New(opts)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	cmd := command{
		c:      c,
		domain: cfg.domain,
		class:  cfg.class,
		after:  cfg.after,
		limit:  cfg.limit,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	err := cmd.run(ctx, args)
	if registry != nil {
		rmetrics.WriteOnce(registry, os.Stderr)
	}
	return err
}

func newLogger(kind string, verbose bool) mogilefs.Logger {
	switch kind {
	case "zerolog":
		lvl := zerolog.WarnLevel
		if verbose {
			lvl = zerolog.DebugLevel
		}
		return zerologlog.Logger{L: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()}
	case "slog":
		lvl := stdslog.LevelWarn
		if verbose {
			lvl = stdslog.LevelDebug
		}
		return slogadapter.Logger{L: stdslog.New(stdslog.NewTextHandler(os.Stderr, &stdslog.HandlerOptions{Level: lvl}))}
	default:
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.WarnLevel)
		if verbose {
			l.SetLevel(logrus.DebugLevel)
		}
		return logruslog.New(l)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
