// Package server provides the HTTP surface of digits: routing, middleware and handlers.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering and JSON 404/405 bodies.
//
// # Middleware
//
//   - [RequestIDMiddleware] tags each request with a UUID (X-Request-ID)
//   - [LoggingMiddleware] logs every request with its status and duration
//   - [RecoveryMiddleware] turns handler panics into a JSON 500
//   - [CORSMiddleware], [RateLimitMiddleware] and [MaxBytesMiddleware] guard the public endpoints
//
// # Handlers
//
// [PredictHandler] serves POST /predict. [StatusHandler] serves /, /testing and /health.
// [SpotifyHandler] serves the browser OAuth flow (/login, /callback, /refresh_token, /status)
// with tokens persisted on a cookie-keyed session.
//
// [OAuthHandler] implements the one-shot terminal login used by `digits spotify login`:
// a temporary server handles a single callback and sends the token through a channel.
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// [NewRouter] assembles all of the above and [Serve] runs it with graceful shutdown.
package server
