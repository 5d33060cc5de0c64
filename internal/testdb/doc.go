// Package testdb provides helpers for PostgreSQL integration tests.
//
// Tests call GetTestDBWithT, which skips when DATABASE_URL is unset, applies
// the embedded goose migrations once per process and registers cleanup.
// Each test then isolates its writes with WithTx, which rolls back when the
// test function returns:
//
//	db := testdb.GetTestDBWithT(t)
//	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	    tasks := postgres.NewPostgresTaskStore(tx, nil)
//	    ...
//	})
package testdb
