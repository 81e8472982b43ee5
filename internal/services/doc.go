// Package services talks to the two remote systems a sync run depends on.
//
// # Catalog
//
// [BeatSaverService] implements [Catalog] against the BeatSaver REST API. A search runs a cascade of
// queries and stops at the first one that returns documents:
//
//  1. the track title in quotes (literal match)
//  2. "artist title" unquoted
//  3. the same terms against /search/advanced, when catalog.advanced_fallback is set
//
// Every outbound request, including retries and archive downloads, first waits on a shared
// [throttle.Pacer] so consecutive calls are at least catalog.pause_sec apart. Each query runs under a
// [throttle.Policy]: timeouts, connection errors, 429 and 5xx are retried with exponential backoff
// (Retry-After raises the wait), other 4xx are not. A 404 is an empty result.
//
// # Library
//
// [SpotifyLibrary] implements [Library] with github.com/zmb3/spotify/v2. The OAuth token is cached by
// [TokenStore]; when it is missing, corrupt, or rejected with a 401, the injected [Authorizer] runs once
// and the new token is cached.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrTransient] : retryable remote failure (wrapped by [StatusError] for 429/5xx)
//   - [shared.ErrNotFound] : 404 from the catalog
//   - [shared.ErrAPIRequest] : non-retryable remote failure
//   - [shared.ErrTokenExpired] : Spotify rejected the token
//   - [shared.ErrAuthFailed] : interactive authorization failed
package services
