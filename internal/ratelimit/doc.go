// Package ratelimit is middleware for per-IP rate limiting.
//
// Simple in-memory token buckets, not shared between instances. An
// asset server is cheap per request, so the point is connection and
// goroutine exhaustion from a single flooding IP, plus visibility into
// who is doing it. Distributed attacks and bandwidth-bill attacks are
// out of reach here and belong to upstream filtering.
package ratelimit
