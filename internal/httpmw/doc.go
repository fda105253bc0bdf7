// Package httpmw provides HTTP middleware for the asset server.
//
// Middleware is composed in a fixed order in httpserver.NewHandler:
// panic recovery, security headers, request ID, client IP extraction,
// rate limiting, OTel tracing, release headers, metrics, structured
// logging, then the router.
//
// Each middleware is an independent function that can be tested,
// reordered, or removed individually. User-supplied data (query params,
// user-agent, request headers) is intentionally excluded from logs to
// prevent PII leaks and log injection.
package httpmw
