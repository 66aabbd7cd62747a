// Package telemetry records how the search endpoints are used: request counts
// per endpoint, latency buckets, frequent terms, zero-result and degraded
// queries. Everything stays local; aggregates can be flushed to SQLite.
package telemetry
