// Package config loads the report server configuration from the `server:`
// section of config.yaml (the `etl:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort         : port for the REST API, WebSocket hub and /metrics (default 8080)
//   - Auth.Mode        : "apikey" or "none"
//   - Auth.KeyEnv      : environment variable holding the expected API key
//   - Auth.Header      : HTTP header name (default "x-api-key")
//   - Reports          : storage block of the published reports bucket
//   - RefreshInterval  : how often reports are re-read (default 1m)
//   - BroadcastInterval: WebSocket push period (default 5s)
//   - Alerts           : batch alert rules and webhooks
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
