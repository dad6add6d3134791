// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store and internal/task packages.
// It handles query execution, row locking for the credit ledger, and mapping
// of constraint violations to store errors. The schema lives in the embedded
// goose migrations under migrations/.
package postgres
