// Package database provides SQLite connectivity for the controller's
// attempt ledger.
//
// It manages the connection (WAL mode, single-writer pool, busy
// timeout), embedded schema migrations, and lifecycle. All queries use
// parameterised statements, and the database file is created with 0600
// permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be nullable or carry
// defaults, and each migration ships an .up.sql with an optional
// .down.sql for development rollback.
package database
