// Package services implements the [OAuthService] interface for Spotify.
//
// # Spotify Implementation
//
// [SpotifyService] drives the authorization-code flow through [oauth2.Config]: the
// authorize URL, the code exchange and refresh-token grants. Client credentials are
// sent in the HTTP Basic header. Endpoints come from configuration so tests can
// point the service at an [httptest.Server].
//
// Token state is never held by the service; callers pass the [oauth2.Token] of
// the session they are serving.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrMissingCredentials] : client ID or secret not configured
//   - [shared.ErrTokenExchange] : authorization code rejected
//   - [shared.ErrRefreshFailed] : refresh grant rejected
//   - [shared.ErrAPIRequest] : Web API call failed
//
// Failures with a known upstream status are wrapped in [StatusError].
package services
