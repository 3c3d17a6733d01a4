// Package middleware provides the HTTP middleware for the bridge server.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting with idle sweeping
//   - GlobalRateLimit: One token bucket for every client
//   - Gzip: Response compression for pages, files and the client script
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	router.Use(middleware.Gzip(gzip.DefaultCompression, "/metrics", "/_bridge/"))
package middleware
