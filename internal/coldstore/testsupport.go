package coldstore

import "database/sql"

// NewDatabaseForTest wraps an already-open *sql.DB (typically a
// sqlmock connection) as a *Database, bypassing NewDatabase's dial and
// ping. Used by other packages' tests that need a *Database without a
// real connection.
func NewDatabaseForTest(db *sql.DB) *Database {
	return &Database{DB: db, driver: "sqlite"}
}
