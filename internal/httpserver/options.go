package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/varserve/varserve/internal/health"
	"github.com/varserve/varserve/internal/httpmw"
	"github.com/varserve/varserve/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// AssetHandler is the catch-all: every request that matches no
	// explicit route resolves against the asset index.
	AssetHandler http.Handler

	// APIRoutes registers extra routes on the router before the
	// catch-all is installed.
	APIRoutes func(chi.Router)

	Health    health.Probe
	Readiness health.Probe

	UseRecoverMW bool
	OnPanic      func()

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	ClientIPOpts httpmw.ClientIPOptions

	// ReleaseInfo feeds the X-Asset-Release response headers; nil skips
	// the middleware.
	ReleaseInfo httpmw.ReleaseInfo

	// MaxBodyBytes caps request bodies. Zero uses the default.
	MaxBodyBytes int64
}
