package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReleaseInfo reports which asset release the server is serving.
type ReleaseInfo interface {
	ReleaseID() string
	ReleaseChecksum() string
}

// ReleaseHeaders adds X-Asset-Release and X-Asset-Checksum headers to
// all responses when release information is available, and mirrors the
// values onto the active span.
func ReleaseHeaders(info ReleaseInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info != nil {
				id := info.ReleaseID()
				sum := info.ReleaseChecksum()
				if id != "" {
					w.Header().Set("X-Asset-Release", id)
				}
				if sum != "" {
					// short form is enough to tell releases apart
					if len(sum) > 12 {
						sum = sum[:12]
					}
					w.Header().Set("X-Asset-Checksum", sum)
				}
				if span := trace.SpanFromContext(r.Context()); span != nil && span.IsRecording() {
					if id != "" {
						span.SetAttributes(attribute.String("asset.release", id))
					}
					if sum != "" {
						span.SetAttributes(attribute.String("asset.checksum", sum))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
