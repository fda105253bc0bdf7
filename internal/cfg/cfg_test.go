package cfg

import (
	"flag"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/varserve/varserve/internal/variant"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig registers flags on a fresh FlagSet, parses the given args,
// and returns the resulting App. This isolates each test from flag.CommandLine.
func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)

	if c.CompressedRoot != "" {
		t.Errorf("CompressedRoot: want empty, got %q", c.CompressedRoot)
	}
	if c.IndexFile != "index.html" {
		t.Errorf("IndexFile: want %q, got %q", "index.html", c.IndexFile)
	}
	if c.DisableCompression {
		t.Error("DisableCompression: want false")
	}
	if c.EnableBrotli {
		t.Error("EnableBrotli: want false")
	}
	if c.AliasExtensions != "html" {
		t.Errorf("AliasExtensions: want %q, got %q", "html", c.AliasExtensions)
	}
	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080, got %d", c.HTTPPort)
	}
	if c.AdminPort != 9000 {
		t.Errorf("AdminPort: want 9000, got %d", c.AdminPort)
	}
	if !c.LogJSON {
		t.Error("LogJSON: want true")
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel: want %q, got %q", "info", c.LogLevel)
	}
	if c.StacktraceLevel != "error" {
		t.Errorf("StacktraceLevel: want %q, got %q", "error", c.StacktraceLevel)
	}
	if !c.EnablePprof {
		t.Error("EnablePprof: want true")
	}
	if c.EnableTracing {
		t.Error("EnableTracing: want false")
	}
	if c.EnablePyroscope {
		t.Error("EnablePyroscope: want false")
	}
	if c.RateLimitPerSecond != 50 {
		t.Errorf("RateLimitPerSecond: want 50, got %g", c.RateLimitPerSecond)
	}
	if c.RateLimitBurst != 200 {
		t.Errorf("RateLimitBurst: want 200, got %d", c.RateLimitBurst)
	}
	if c.RateLimitVisitors != 100000 {
		t.Errorf("RateLimitVisitors: want 100000, got %d", c.RateLimitVisitors)
	}
	if c.TrustedHops != 0 {
		t.Errorf("TrustedHops: want 0, got %d", c.TrustedHops)
	}
	if c.EnableBundleFetch {
		t.Error("EnableBundleFetch: want false")
	}
}

func TestRegister_CLIOverrides(t *testing.T) {
	c := newTestConfig(t, []string{
		"-compressed-root=/srv/assets",
		"-uncompressed-root=/srv/raw",
		"-index-file=home.html",
		"-disable-compression=true",
		"-enable-brotli=true",
		"-custom-compressions=zstd=zst",
		"-order-preference=br,gzip",
		"-alias-extensions=html,htm",
		"-http-port=9090",
		"-admin-port=9100",
		"-log-json=false",
		"-log-level=debug",
		"-stacktrace-level=warn",
		"-trusted-hops=2",
		"-ratelimit-per-second=10",
		"-ratelimit-burst=30",
		"-enable-bundle-fetch=true",
		"-bundle-ssm-param=/app/varserve/release",
		"-bundle-s3-bucket=my-bucket",
		"-bundle-s3-prefix=bundles",
		"-bundle-extract-dir=/tmp/bundles",
	})

	if c.CompressedRoot != "/srv/assets" {
		t.Errorf("CompressedRoot: want %q, got %q", "/srv/assets", c.CompressedRoot)
	}
	if c.UncompressedRoot != "/srv/raw" {
		t.Errorf("UncompressedRoot: want %q, got %q", "/srv/raw", c.UncompressedRoot)
	}
	if c.IndexFile != "home.html" {
		t.Errorf("IndexFile: want %q, got %q", "home.html", c.IndexFile)
	}
	if !c.DisableCompression {
		t.Error("DisableCompression: want true")
	}
	if !c.EnableBrotli {
		t.Error("EnableBrotli: want true")
	}
	if c.CustomCompressions != "zstd=zst" {
		t.Errorf("CustomCompressions: want %q, got %q", "zstd=zst", c.CustomCompressions)
	}
	if c.OrderPreference != "br,gzip" {
		t.Errorf("OrderPreference: want %q, got %q", "br,gzip", c.OrderPreference)
	}
	if c.HTTPPort != 9090 {
		t.Errorf("HTTPPort: want 9090, got %d", c.HTTPPort)
	}
	if c.AdminPort != 9100 {
		t.Errorf("AdminPort: want 9100, got %d", c.AdminPort)
	}
	if c.LogJSON {
		t.Error("LogJSON: want false")
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q, got %q", "debug", c.LogLevel)
	}
	if c.TrustedHops != 2 {
		t.Errorf("TrustedHops: want 2, got %d", c.TrustedHops)
	}
	if c.RateLimitPerSecond != 10 {
		t.Errorf("RateLimitPerSecond: want 10, got %g", c.RateLimitPerSecond)
	}
	if c.RateLimitBurst != 30 {
		t.Errorf("RateLimitBurst: want 30, got %d", c.RateLimitBurst)
	}
	if !c.EnableBundleFetch {
		t.Error("EnableBundleFetch: want true")
	}
	if c.BundleSSMParam != "/app/varserve/release" {
		t.Errorf("BundleSSMParam: want %q, got %q", "/app/varserve/release", c.BundleSSMParam)
	}
	if c.BundleS3Bucket != "my-bucket" {
		t.Errorf("BundleS3Bucket: want %q, got %q", "my-bucket", c.BundleS3Bucket)
	}
}

func TestFillFromEnv(t *testing.T) {
	pfx := "TESTCFG_"
	t.Setenv(pfx+"COMPRESSED_ROOT", "/env/assets")
	t.Setenv(pfx+"LOG_LEVEL", "debug")
	t.Setenv(pfx+"HTTP_PORT", "8088")
	t.Setenv(pfx+"ENABLE_BROTLI", "true")
	t.Setenv(pfx+"ORDER_PREFERENCE", "br,gzip")
	t.Setenv(pfx+"TRUSTED_HOPS", "1")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	FillFromEnv(fs, pfx, nil)

	if c.CompressedRoot != "/env/assets" {
		t.Errorf("CompressedRoot: want %q, got %q", "/env/assets", c.CompressedRoot)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q, got %q", "debug", c.LogLevel)
	}
	if c.HTTPPort != 8088 {
		t.Errorf("HTTPPort: want 8088, got %d", c.HTTPPort)
	}
	if !c.EnableBrotli {
		t.Error("EnableBrotli: want true from env")
	}
	if c.OrderPreference != "br,gzip" {
		t.Errorf("OrderPreference: want %q, got %q", "br,gzip", c.OrderPreference)
	}
	if c.TrustedHops != 1 {
		t.Errorf("TrustedHops: want 1, got %d", c.TrustedHops)
	}
}

func TestFillFromEnv_CLITakesPrecedence(t *testing.T) {
	pfx := "TESTCFG2_"
	t.Setenv(pfx+"HTTP_PORT", "7777")
	t.Setenv(pfx+"LOG_LEVEL", "warn")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse([]string{"-http-port=9090", "-log-level=debug"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var overrideMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		overrideMessages = append(overrideMessages, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 9090 {
		t.Errorf("HTTPPort: want 9090 (cli), got %d", c.HTTPPort)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q (cli), got %q", "debug", c.LogLevel)
	}
	if len(overrideMessages) != 2 {
		t.Errorf("expected 2 override messages, got %d: %v", len(overrideMessages), overrideMessages)
	}
	for _, msg := range overrideMessages {
		if !strings.Contains(msg, "overrides env") {
			t.Errorf("unexpected override message format: %s", msg)
		}
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	pfx := "TESTCFG3_"
	t.Setenv(pfx+"HTTP_PORT", "not-a-number")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var logMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		logMessages = append(logMessages, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080 (default), got %d", c.HTTPPort)
	}
	if len(logMessages) != 1 {
		t.Fatalf("expected 1 log message, got %d: %v", len(logMessages), logMessages)
	}
	if !strings.Contains(logMessages[0], "ignoring invalid env") {
		t.Errorf("unexpected log message: %s", logMessages[0])
	}
}

func TestValidate_OK(t *testing.T) {
	c := newTestConfig(t, []string{
		"-compressed-root=/srv/assets",
		"-enable-brotli=true",
		"-custom-compressions=zstd=zst,lz=lz4",
		"-order-preference=br,zstd,gzip",
		"-enable-tracing=true",
		"-otlp-endpoint=otel:4317",
		"-trace-sample=0.2",
		"-enable-pyroscope=true",
		"-pyro-server=https://pyro:4040",
		"-pyro-tenant=test-tenant",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_BundleModeNeedsNoRoot(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-bundle-fetch=true",
		"-bundle-ssm-param=/app/varserve/release",
		"-bundle-s3-bucket=my-bucket",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := newTestConfig(t, []string{
		"-http-port=0",
		"-admin-port=70000",
		"-index-file=",
		"-custom-compressions=justaname",
		"-log-level=nope",
		"-stacktrace-level=alsonope",
		"-trace-sample=2.0",
		"-enable-pyroscope=true",
		"-pyro-server=not-a-url",
		"-enable-tracing=true",
		"-otlp-endpoint=otel",
		"-ratelimit-per-second=0",
		"-ratelimit-burst=0",
		"-trusted-hops=99",
	})

	err := Validate(c)
	if err == nil {
		t.Fatal("Validate() expected errors, got <nil>")
	}

	wantErrContains(t, err, "invalid HTTP_PORT")
	wantErrContains(t, err, "invalid ADMIN_PORT")
	wantErrContains(t, err, "COMPRESSED_ROOT is required")
	wantErrContains(t, err, "INDEX_FILE must not be empty")
	wantErrContains(t, err, "CUSTOM_COMPRESSIONS")
	wantErrContains(t, err, "invalid LOG_LEVEL")
	wantErrContains(t, err, "invalid STACKTRACE_LEVEL")
	wantErrContains(t, err, "invalid TRACE_SAMPLE")
	wantErrContains(t, err, "PYRO_SERVER must be a URL")
	wantErrContains(t, err, "OTLP_ENDPOINT must be host:port")
	wantErrContains(t, err, "RATELIMIT_PER_SECOND")
	wantErrContains(t, err, "RATELIMIT_BURST")
	wantErrContains(t, err, "TRUSTED_HOPS")
}

func TestValidate_MissingBundleFields(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-bundle-fetch=true",
		"-bundle-extract-dir=",
	})
	err := Validate(c)
	wantErrContains(t, err, "BUNDLE_SSM_PARAM required")
	wantErrContains(t, err, "BUNDLE_S3_BUCKET required")
	wantErrContains(t, err, "BUNDLE_EXTRACT_DIR required")
}

func TestVariantConfig(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-brotli=true",
		"-custom-compressions=zstd=.zst, lz = lz4",
	})

	got, err := c.VariantConfig()
	if err != nil {
		t.Fatalf("VariantConfig: %v", err)
	}
	want := variant.Config{
		EnableBrotli: true,
		Custom: []variant.Custom{
			{Name: "zstd", Ext: "zst"},
			{Name: "lz", Ext: "lz4"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("VariantConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestVariantConfig_RejectsIdentity(t *testing.T) {
	for _, bad := range []string{"identity=id", "none=x"} {
		c := newTestConfig(t, []string{"-custom-compressions=" + bad})
		if _, err := c.VariantConfig(); err == nil {
			t.Errorf("VariantConfig(%q): expected error", bad)
		}
	}
}

func TestNegotiatePrefs(t *testing.T) {
	c := newTestConfig(t, []string{
		"-disable-compression=true",
		"-order-preference=br, gzip ,zstd",
	})
	p := c.NegotiatePrefs()
	if !p.DisableCompression {
		t.Error("DisableCompression: want true")
	}
	if diff := cmp.Diff([]string{"br", "gzip", "zstd"}, p.Order); diff != "" {
		t.Fatalf("Order mismatch (-want +got):\n%s", diff)
	}
}

func TestAliasExts(t *testing.T) {
	c := newTestConfig(t, []string{"-alias-extensions=.html, htm ,"})
	if diff := cmp.Diff([]string{"html", "htm"}, c.AliasExts()); diff != "" {
		t.Fatalf("AliasExts mismatch (-want +got):\n%s", diff)
	}
}
