package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/mogilefs"
	"github.com/unkn0wn-root/mogilefs/backend/mem"
	redisbackend "github.com/unkn0wn-root/mogilefs/backend/redis"
	"github.com/unkn0wn-root/mogilefs/cache"
	"github.com/unkn0wn-root/mogilefs/cache/bigcache"
	"github.com/unkn0wn-root/mogilefs/cache/ristretto"
	"github.com/unkn0wn-root/mogilefs/codec"
	zaplog "github.com/unkn0wn-root/mogilefs/log/zap"
	"github.com/unkn0wn-root/mogilefs/server"
	"github.com/unkn0wn-root/mogilefs/storage"
)

func main() {
	def := server.Default()
	var (
		listen   = flag.String("listen", def.BindAddr, "tracker listen address")
		acceptor = flag.String("acceptor", string(def.Acceptor), "connection handling: threaded|evented")
		baseURL  = flag.String("base-url", "http://127.0.0.1:7500/", "storage URL handed out to clients")

		// storage node
		storageListen = flag.String("storage-listen", "127.0.0.1:7500", "storage node listen address (empty = no storage node)")
		maxBody       = flag.Int64("max-body", 1<<30, "max upload size in bytes (negative = unlimited)")
		cacheKind     = flag.String("cache", "none", "storage read cache: none|ristretto|bigcache")
		cacheMB       = flag.Int("cache-mb", 256, "storage read cache budget in MiB")
		cacheTTL      = flag.Duration("cache-ttl", 10*time.Minute, "storage read cache entry lifetime")

		// backend
		backendKind = flag.String("backend", "mem", "metadata backend: mem|redis")
		strict      = flag.Bool("strict", false, "reject unregistered domains with unreg_domain")
		redisAddr   = flag.String("redis-addr", "127.0.0.1:6379", "comma-separated redis addresses")
		redisNS     = flag.String("redis-ns", "mogilefs", "redis key namespace")
		redisCodec  = flag.String("redis-codec", "msgpack", "record codec: "+strings.Join(codec.Names, "|"))

		// limits
		idleTO  = flag.Duration("idleto", def.IdleTimeout, "close connections idle for this long (0 = never)")
		readTO  = flag.Duration("readto", def.ReadTimeout, "time to finish reading a request line")
		writeTO = flag.Duration("writeto", def.WriteTimeout, "time to write a response")
		maxLine = flag.Int("maxline", def.MaxLineSize, "max request line bytes")

		// logging
		logDev   = flag.Bool("log-dev", false, "human readable development logs")
		logLevel = flag.String("log-level", "info", "debug|info|warn|error")
	)
	flag.Parse()

	zl, err := newZap(*logDev, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mogilefsd: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = zl.Sync() }()
	logger := zaplog.New(zl)

	base, err := url.Parse(*baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		zl.Fatal("invalid -base-url", zap.String("url", *baseURL), zap.Error(err))
	}
	acc, err := server.ParseAcceptor(*acceptor)
	if err != nil {
		zl.Fatal("invalid -acceptor", zap.Error(err))
	}

	b, closeBackend, err := openBackend(*backendKind, base, *strict, *redisAddr, *redisNS, *redisCodec)
	if err != nil {
		zl.Fatal("backend", zap.Error(err))
	}
	defer closeBackend()

	cfg := def
	cfg.BindAddr = *listen
	cfg.Acceptor = acc
	cfg.IdleTimeout = *idleTO
	cfg.ReadTimeout = *readTO
	cfg.WriteTimeout = *writeTO
	cfg.MaxLineSize = *maxLine

	tracker := server.New(cfg, mogilefs.NewTracker(b, logger), logger)
	if err := tracker.Start(); err != nil {
		zl.Fatal("tracker start", zap.Error(err))
	}

	var node *http.Server
	var contentCache cache.Provider
	if *storageListen != "" {
		contentCache, err = openCache(*cacheKind, *cacheMB, *cacheTTL)
		if err != nil {
			zl.Fatal("cache", zap.Error(err))
		}
		node = &http.Server{
			Addr: *storageListen,
			Handler: storage.New(b, storage.Config{
				BasePath:    base.Path,
				MaxBodySize: *maxBody,
				Cache:       contentCache,
				Logger:      logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		ln, err := net.Listen("tcp", *storageListen)
		if err != nil {
			zl.Fatal("storage listen", zap.Error(err))
		}
		go func() {
			if err := node.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error("storage node stopped", zap.Error(err))
			}
		}()
	}

	zl.Info("mogilefsd up",
		zap.String("tracker", tracker.Addr().String()),
		zap.String("acceptor", string(acc)),
		zap.String("backend", *backendKind),
		zap.Bool("strict", *strict),
		zap.String("base_url", base.String()),
		zap.String("storage", *storageListen),
		zap.String("cache", *cacheKind),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zl.Info("shutting down")

	tracker.Stop()
	if node != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = node.Shutdown(ctx)
		cancel()
	}
	if contentCache != nil {
		_ = contentCache.Close(context.Background())
	}
	zl.Info("bye")
}

func newZap(dev bool, level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

func openBackend(kind string, base *url.URL, strict bool, addrs, ns, codecName string) (mogilefs.Backend, func(), error) {
	switch kind {
	case "mem":
		b, err := mem.New(mem.Options{BaseURL: base, Strict: strict})
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	case "redis":
		rc, err := codec.ForName(codecName)
		if err != nil {
			return nil, nil, err
		}
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: splitCSV(addrs)})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		b, err := redisbackend.New(redisbackend.Config{
			Client:      client,
			CloseClient: true,
			Namespace:   ns,
			BaseURL:     base,
			Strict:      strict,
			Codec:       codec.Limit[mogilefs.File]{Inner: rc, MaxDecode: 64 << 10},
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return b, func() { _ = b.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", kind)
	}
}

func openCache(kind string, mb int, ttl time.Duration) (cache.Provider, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "ristretto":
		cfg := ristretto.DefaultConfig(int64(mb) << 20)
		cfg.TTL = ttl
		p, err := ristretto.New(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "bigcache":
		p, err := bigcache.New(bigcache.Config{
			LifeWindow:         ttl,
			HardMaxCacheSizeMB: mb,
			MaxContentSize:     1 << 20,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown cache %q", kind)
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
