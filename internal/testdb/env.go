//go:build integration

package testdb

import "os"

// databaseURLVars lists the variables checked for a test database, in order.
var databaseURLVars = []string{"DATABASE_URL", "CAROUSEL_TEST_DB_URL", "CAROUSEL_DATABASE_URL"}

// GetTestDatabaseURL returns the first configured test database URL.
func GetTestDatabaseURL() string {
	for _, name := range databaseURLVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// IsIntegrationTestEnvironment reports whether a test database is configured.
func IsIntegrationTestEnvironment() bool {
	return GetTestDatabaseURL() != ""
}

// ShouldSkipDatabaseTest reports whether database tests should be skipped.
func ShouldSkipDatabaseTest() bool {
	return !IsIntegrationTestEnvironment()
}
