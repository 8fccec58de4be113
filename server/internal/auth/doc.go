// Package auth provides authentication middleware for fleethealth-server.
//
// APIKeyMiddleware(mode, header, key, next) validates the API key from the
// named HTTP header (or the api_key query parameter) before calling next.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware answers 401 immediately.
package auth
