// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, item)
//	httputil.WriteCreated(w, item)
//	httputil.WriteForbidden(w, "insufficient permissions")
//	httputil.WriteLocked(w, "role is protected")
//	httputil.WriteTeapot(w, "publish time must be in the future")
//
// Error bodies are always {"error": "...", "reason": "..."}; reason is set for
// authorization and scheduling outcomes so clients can branch without parsing text.
//
// # Request Parsing
//
//	var req approveRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	page, err := httputil.ParsePage(r)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware,
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
