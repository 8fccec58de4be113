// Package types defines the report documents shared by the ETL job and the
// report server. These are the canonical in-memory representations of fleet
// health data and also the JSON shape published to the client bucket.
package types
