// Package ws streams report events to dashboard clients over WebSocket.
//
// Every frame is an Envelope:
//
//	{"event": "snapshot", "data": { /* GET /api/v1/snapshot body */ }}
//	{"event": "report_loaded", "data": {
//	    "loaded_at": "...", "documents": 6,
//	    "global": {...}, "global_changed": true,
//	    "changed": [ /* full CompanyReport of each new or changed company */ ],
//	    "removed": ["Gone Corp"]}}
//
// A client receives a snapshot on connect and then one every broadcast
// interval. Hub.Notify, wired to the store's reload listener, adds a
// report_loaded event whenever a reload changes the report set, so clients
// can refresh only the companies that moved.
//
// The hub is mounted at /ws/stream.
package ws
