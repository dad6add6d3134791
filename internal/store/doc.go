// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic: users, the append-only credit ledger,
// carousel generations and their slides. Implementations live in
// internal/platform/postgres.
//
// Every store exposes WithTx so that a service can combine several
// operations into one transaction started through RunInTransaction.
package store
