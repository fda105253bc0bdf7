// Package cfg holds the flag-backed application config. Precedence is
// cli flag > environment variable > default.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/varserve/varserve/internal/log"
	"github.com/varserve/varserve/internal/negotiate"
	"github.com/varserve/varserve/internal/variant"
)

type App struct {
	// Asset serving
	CompressedRoot     string
	UncompressedRoot   string
	IndexFile          string
	DisableCompression bool
	EnableBrotli       bool
	CustomCompressions string
	OrderPreference    string
	AliasExtensions    string

	// Listeners
	HTTPPort  int
	AdminPort int

	// Logging
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string

	// Observability
	EnablePprof     bool
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string

	// Rate limiting
	RateLimitPerSecond float64
	RateLimitBurst     int
	RateLimitVisitors  int
	TrustedHops        int

	// Bundle fetching
	EnableBundleFetch bool
	BundleSSMParam    string
	BundleS3Bucket    string
	BundleS3Prefix    string
	BundleExtractDir  string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.CompressedRoot, "compressed-root", "", "directory holding precompressed assets (required unless -enable-bundle-fetch)")
	fs.StringVar(&c.UncompressedRoot, "uncompressed-root", "", "directory holding uncompressed assets (default: same as compressed root)")
	fs.StringVar(&c.IndexFile, "index-file", "index.html", "logical path served for directory requests")
	fs.BoolVar(&c.DisableCompression, "disable-compression", false, "serve every request uncompressed")
	fs.BoolVar(&c.EnableBrotli, "enable-brotli", false, "recognize .br files as brotli variants")
	fs.StringVar(&c.CustomCompressions, "custom-compressions", "", "extra encodings as name=ext pairs, comma separated (e.g. zstd=zst)")
	fs.StringVar(&c.OrderPreference, "order-preference", "", "server-side encoding tie-break order, comma separated (e.g. br,gzip)")
	fs.StringVar(&c.AliasExtensions, "alias-extensions", "html", "extensions requests may omit, comma separated")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.Float64Var(&c.RateLimitPerSecond, "ratelimit-per-second", 50, "sustained requests per second per client IP")
	fs.IntVar(&c.RateLimitBurst, "ratelimit-burst", 200, "burst size per client IP")
	fs.IntVar(&c.RateLimitVisitors, "ratelimit-max-visitors", 100000, "max tracked client IPs (0 disables the cap)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "trusted proxy hops for X-Forwarded-For (0 trusts the peer address only)")
	fs.BoolVar(&c.EnableBundleFetch, "enable-bundle-fetch", false, "fetch the asset bundle from S3/SSM at startup")
	fs.StringVar(&c.BundleSSMParam, "bundle-ssm-param", "", "ssm parameter name holding the current bundle sha256")
	fs.StringVar(&c.BundleS3Bucket, "bundle-s3-bucket", "", "s3 bucket name holding asset bundles")
	fs.StringVar(&c.BundleS3Prefix, "bundle-s3-prefix", "", "s3 prefix (key) under which bundles live")
	fs.StringVar(&c.BundleExtractDir, "bundle-extract-dir", "/var/lib/varserve/bundles", "directory bundles are extracted into")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Asset roots. Without bundle fetching the compressed root must be
	// given up front; with it, the extracted bundle becomes the root.
	if !c.EnableBundleFetch && c.CompressedRoot == "" {
		errs = append(errs, fmt.Errorf("COMPRESSED_ROOT is required when ENABLE_BUNDLE_FETCH=false"))
	}
	if c.IndexFile == "" {
		errs = append(errs, fmt.Errorf("INDEX_FILE must not be empty"))
	}
	if strings.HasPrefix(c.IndexFile, "/") {
		errs = append(errs, fmt.Errorf("INDEX_FILE must be relative (got %q)", c.IndexFile))
	}

	// Custom compressions
	if _, err := parseCustomCompressions(c.CustomCompressions); err != nil {
		errs = append(errs, err)
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Rate limiting
	if c.RateLimitPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_PER_SECOND must be > 0 (got %g)", c.RateLimitPerSecond))
	}
	if c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_BURST must be >= 1 (got %d)", c.RateLimitBurst))
	}
	if c.RateLimitVisitors < 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_MAX_VISITORS must be >= 0 (got %d)", c.RateLimitVisitors))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..10 (got %d)", c.TrustedHops))
	}

	// Bundle fetching
	if c.EnableBundleFetch {
		if c.BundleSSMParam == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_SSM_PARAM required when ENABLE_BUNDLE_FETCH=true"))
		}
		if c.BundleS3Bucket == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_S3_BUCKET required when ENABLE_BUNDLE_FETCH=true"))
		}
		if c.BundleExtractDir == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_EXTRACT_DIR required when ENABLE_BUNDLE_FETCH=true"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// VariantConfig translates the compression flags into the registry
// config. Validate must have passed first.
func (c App) VariantConfig() (variant.Config, error) {
	custom, err := parseCustomCompressions(c.CustomCompressions)
	if err != nil {
		return variant.Config{}, err
	}
	return variant.Config{
		DisableCompression: c.DisableCompression,
		EnableBrotli:       c.EnableBrotli,
		Custom:             custom,
	}, nil
}

// NegotiatePrefs translates the negotiation flags into selection prefs.
func (c App) NegotiatePrefs() negotiate.Prefs {
	return negotiate.Prefs{
		DisableCompression: c.DisableCompression,
		Order:              splitCSV(c.OrderPreference),
	}
}

// AliasExts returns the configured alias extensions in order, dots and
// whitespace stripped.
func (c App) AliasExts() []string {
	var out []string
	for _, e := range splitCSV(c.AliasExtensions) {
		out = append(out, strings.TrimPrefix(e, "."))
	}
	return out
}

// parseCustomCompressions parses "name=ext,name=ext" pairs.
func parseCustomCompressions(s string) ([]variant.Custom, error) {
	var out []variant.Custom
	for _, pair := range splitCSV(s) {
		name, ext, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		ext = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if !ok || name == "" || ext == "" {
			return nil, fmt.Errorf("invalid CUSTOM_COMPRESSIONS entry %q (want name=ext)", pair)
		}
		if name == variant.IdentityName || name == "identity" {
			return nil, fmt.Errorf("CUSTOM_COMPRESSIONS must not redefine identity (%q)", pair)
		}
		out = append(out, variant.Custom{Name: name, Ext: ext})
	}
	return out, nil
}

// splitCSV splits on commas, trims whitespace, and drops empties.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
