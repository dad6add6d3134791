// Package mocks provides centralized test doubles.
//
// MemoryDB is an in-memory implementation of every store interface plus a
// Transactor that serializes transactions and rolls back on error, so ledger
// and pipeline tests run without PostgreSQL. The provider mocks follow the
// function-field pattern: set XxxFn to customize behavior and read the
// recorded calls to verify interactions.
//
//	db := mocks.NewMemoryDB()
//	l := ledger.New(db.Transactor(), db.Users(), db.Credits(), db.Generations(), nil, nil)
package mocks
