// Package server provides the local HTTP callback used to authorize beatsync against Spotify.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] is the only middleware in use.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// OAuthHandler implements the OAuth2 authorization code callback flow.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel.
//
// It only processes one callback to prevent replay attacks.
//
// # Callback Flow
//
// [CallbackFlow.Authorize] starts a temporary server on the host and port of the configured redirect URI,
// opens the consent page, and shuts the server down once a token arrives or the timeout expires.
// Its signature matches services.Authorizer so it can be handed to the Spotify library directly.
package server
