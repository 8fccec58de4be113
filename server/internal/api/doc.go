// Package api implements the HTTP REST API for fleethealth-server.
//
// New(store, alerts) returns an http.Handler that serves:
//
//	GET /api/v1/health               load state, global dashboard, per-status counts
//	GET /api/v1/companies            one dashboard per company ([]CompanySummary)
//	GET /api/v1/companies/{company}  one company with annotated batches; 404 if unknown
//	GET /api/v1/batches              every batch; ?status= and ?company= filter
//	GET /api/v1/alerts               firing and recently resolved alerts
//	GET /api/v1/snapshot             full JSON dump of the loaded report set
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//   - Read the latest loaded snapshot from the store
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
