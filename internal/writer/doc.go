// Package writer implements the batch writer for the update audit sink.
//
// AuditWriter consumes data_update frames from a registry.Buffer fed by a
// wildcard subscription and inserts them into sync_audit in batches. The
// table is append-only.
package writer
