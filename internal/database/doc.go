// Package database manages the PostgreSQL pool used by the update audit sink.
//
// The audit table records every data_update frame a client received, which
// makes it possible to compare what the backend pushed against what each
// client instance actually saw.
package database
