//go:build integration

// Package testdb provides utilities for database integration tests.
//
// Each test runs in its own transaction, which is rolled back when the test
// completes, so tests can run in parallel without cleanup:
//
//	func TestSomething(t *testing.T) {
//	    if testdb.ShouldSkipDatabaseTest() {
//	        t.Skip("DATABASE_URL not set - skipping integration test")
//	    }
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        users := postgres.NewPostgresUserStore(tx, nil)
//	        ...
//	    })
//	}
//
// Tests that need real row locks across connections (the credit ledger)
// use CleanupTables instead of WithTx.
//
// The package reads DATABASE_URL, falling back to CAROUSEL_TEST_DB_URL and
// CAROUSEL_DATABASE_URL.
package testdb
