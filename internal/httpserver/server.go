// Package httpserver assembles the public handler: router, middleware
// chain, and the asset catch-all. main() owns the *http.Server lifecycle
// through the returned stop func.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/varserve/varserve/internal/health"
	"github.com/varserve/varserve/internal/httpmw"
	"github.com/varserve/varserve/internal/xerrors"
)

// NewHandler builds the HTTP handler with routes and middleware.
//
// There is deliberately no on-the-fly compression middleware here: the
// whole point of the server is handing out pre-compressed variants with
// a negotiated Content-Encoding, and a compressing middleware would
// double-encode them.
func NewHandler(opts *Options) http.Handler {
	r := chi.NewRouter()

	// Annotate logger and tracer with http.route from the chi pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	r.Use(httpmw.AccessLog())

	maxBody := opts.MaxBodyBytes
	if maxBody == 0 {
		maxBody = 1024 // nobody should be sending bodies to an asset server
	}
	r.Use(httpmw.MaxBody(maxBody))

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}

	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}

	// every unrouted path is an asset lookup
	if opts.AssetHandler != nil {
		r.NotFound(opts.AssetHandler.ServeHTTP)
		r.MethodNotAllowed(opts.AssetHandler.ServeHTTP)
	}

	// Middleware, outermost last in wrapping order below.
	var h http.Handler = r

	// request-scoped logging, inner so it sees trace_id
	h = httpmw.WithLogger(opts.Logger)(h)

	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	if opts.ReleaseInfo != nil {
		h = httpmw.ReleaseHeaders(opts.ReleaseInfo)(h)
	}

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span to the final pattern
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	// rate limiting after client IP so it sees the resolved address
	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}

	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)

	// request ID outer so everything downstream sees it
	h = httpmw.RequestID("X-Request-Id")(h)

	if opts.UseRecoverMW {
		h = httpmw.Recover(opts.Logger, opts.OnPanic)(h)
	}

	// security headers outermost so every response carries them
	h = httpmw.SecurityHeaders(h)

	return h
}

// shouldTrace decides which requests get traced. High-volume static
// extensions and health checks would drown everything else out.
func shouldTrace(p string) bool {
	if p == "/favicon.ico" || p == "/favicon.svg" || p == "/robots.txt" {
		return false
	}
	if p == "/-/healthy" || p == "/-/ready" {
		return false
	}
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".webp", ".svg", ".ico", ".woff", ".woff2", ".map":
		return false
	}
	return true
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start launches the public HTTP server and returns stop(ctx) for
// graceful shutdown.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	handler := NewHandler(opts)
	srv := NewServer(addr, handler)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
