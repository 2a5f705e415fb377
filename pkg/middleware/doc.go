// Package middleware provides the HTTP middleware that runs before the
// permission checks: bearer-token authentication and rate limiting.
//
// AuthMiddleware resolves "Authorization: Bearer <token>" to an
// auth.Identity and stores it on the request context. With optional set,
// requests without a header pass through anonymously so that public
// listings stay reachable; the guard answers 401 where an identity is
// required.
//
// RateLimit wraps either limiter:
//
//	limiter := middleware.NewRateLimiter(cfg)                        // per process
//	limiter := middleware.NewDistributedRateLimiter(redis, cfg, "")  // shared via Redis
//	router.Use(middleware.RateLimit(limiter, "api", metrics))
//
// Callers are keyed by user id when authenticated and by client IP
// otherwise. Redis failures fail open.
package middleware
