// Package database provides the SQLite store used by Fleet Core.
//
// It holds the device registry's devices table and the audit_logs trail.
// The package manages:
//   - Opening the file with WAL mode and a busy timeout
//   - Schema migrations read from any fs.FS (the migrations package embeds
//     the shipped schema)
//   - A single-writer connection pool
//
// Usage:
//
//	db, err := database.OpenMigrated(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
// Migrations are additive: new columns must be NULLABLE or carry a DEFAULT,
// and every .up.sql ships with a .down.sql.
package database
