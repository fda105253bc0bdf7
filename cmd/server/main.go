package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/varserve/varserve/internal/assethandler"
	"github.com/varserve/varserve/internal/assetindex"
	"github.com/varserve/varserve/internal/bundle"
	"github.com/varserve/varserve/internal/cfg"
	"github.com/varserve/varserve/internal/health"
	"github.com/varserve/varserve/internal/httpmw"
	"github.com/varserve/varserve/internal/httpserver"
	"github.com/varserve/varserve/internal/log"
	"github.com/varserve/varserve/internal/metrics"
	"github.com/varserve/varserve/internal/opshttp"
	"github.com/varserve/varserve/internal/otelx"
	"github.com/varserve/varserve/internal/prof"
	"github.com/varserve/varserve/internal/ratelimit"
	"github.com/varserve/varserve/internal/variant"
	v "github.com/varserve/varserve/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			v.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix VARSERVE_ and validate
	cfg.FillFromEnv(flag.CommandLine, "VARSERVE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:        v.AppName,
		Version:    vi.Version,
		Level:      lvl,
		StackLevel: stackLvl,
		JsonFormat: conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"compressed_root", conf.CompressedRoot,
		"uncompressed_root", conf.UncompressedRoot,
		"index_file", conf.IndexFile,
		"disable_compression", conf.DisableCompression,
		"enable_brotli", conf.EnableBrotli,
		"custom_compressions", conf.CustomCompressions,
		"order_preference", conf.OrderPreference,
		"alias_extensions", conf.AliasExtensions,
		"enable_bundle_fetch", conf.EnableBundleFetch,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"trusted_hops", conf.TrustedHops,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Setup metrics
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// Resolve the asset roots: either fetch the release bundle from
	// S3/SSM or serve whatever is already on disk.
	compressedRoot := conf.CompressedRoot
	var releaseInfo httpmw.ReleaseInfo
	if conf.EnableBundleFetch {
		fetcher, err := bundle.NewFetcher(ctx, bundle.Options{
			Logger:     L,
			SSMParam:   conf.BundleSSMParam,
			S3Bucket:   conf.BundleS3Bucket,
			S3Prefix:   conf.BundleS3Prefix,
			ExtractDir: conf.BundleExtractDir,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create bundle fetcher")
			os.Exit(1)
		}
		fetchStart := time.Now()
		rel, err := fetcher.Fetch(ctx)
		if err != nil {
			if conf.CompressedRoot == "" {
				L.Error(ctx, err, "bundle fetch failed and no local root configured")
				os.Exit(1)
			}
			L.Error(ctx, err, "bundle fetch failed, serving local root", "compressed_root", conf.CompressedRoot)
		} else {
			m.ObserveBundleLoadDuration(time.Since(fetchStart).Seconds())
			m.SetRelease(rel.ReleaseID(), rel.SHA256)
			m.SetAssetSource("bundle")
			compressedRoot = rel.Dir
			releaseInfo = rel
			L.Info(ctx, "serving bundled release", "release", rel.ReleaseID(), "dir", rel.Dir)
		}
	}
	if releaseInfo == nil {
		m.SetAssetSource("local")
	}

	// Build the compression variant registry from config
	vcfg, err := conf.VariantConfig()
	if err != nil {
		L.Error(ctx, err, "invalid compression config")
		os.Exit(1)
	}
	registry := variant.NewRegistry(vcfg)

	compressedFS := os.DirFS(compressedRoot)
	uncompressedFS := compressedFS
	rootsDiffer := false
	if conf.UncompressedRoot != "" && conf.UncompressedRoot != compressedRoot {
		uncompressedFS = os.DirFS(conf.UncompressedRoot)
		rootsDiffer = true
	}

	// Kick off the one-shot index build. Requests arriving before it
	// completes queue on the builder's ready signal.
	builder := assetindex.NewBuilder(assetindex.Options{
		FS:          compressedFS,
		Registry:    registry,
		RootsDiffer: rootsDiffer,
		AliasExts:   conf.AliasExts(),
		Logger:      L,
	})
	builder.Start(ctx)

	// A missing root is fatal: the server must not come up and silently
	// serve nothing. Other build outcomes publish index stats.
	go func() {
		if err := builder.Ready(ctx); err != nil {
			if errors.Is(err, assetindex.ErrRootNotFound) {
				L.Error(ctx, err, "asset root not found, exiting", "compressed_root", compressedRoot)
				os.Exit(1)
			}
			return
		}
		ix := builder.Index()
		m.SetIndexStats(ix.EncodingCounts(), ix.FileErrors(), builder.BuildDuration())
	}()

	assets, err := assethandler.New(assethandler.Options{
		Logger:         L,
		Index:          builder,
		CompressedFS:   compressedFS,
		UncompressedFS: uncompressedFS,
		IndexFile:      conf.IndexFile,
		Negotiation:    conf.NegotiatePrefs(),
		OnServed:       m.IncNegotiated,
		OnPassed:       m.IncPassed,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create asset handler")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// readiness requires the shutdown gate open and the index built
	readiness := health.All(
		gate.Probe(),
		health.CheckFunc(func(ctx context.Context) error {
			return builder.Ready(ctx)
		}),
	)

	// Setup rate limiter middleware
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitPerSecond, conf.RateLimitBurst),
		ratelimit.WithMaxVisitors(conf.RateLimitVisitors),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	// start asset http server
	assetHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		AssetHandler: assets,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		ReleaseInfo:  releaseInfo,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start asset http listener")
		os.Exit(1)
	}
	defer func() { _ = assetHTTPStop(context.Background()) }()

	// start admin/ops listener for metrics, health checks, and pprof
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness to drain connections
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(15 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := assetHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "asset http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
