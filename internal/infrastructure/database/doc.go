// Package database provides SQLite connectivity for the Danfoss Air bridge.
//
// It manages:
//   - The connection, with WAL mode for concurrent reads
//   - Embedded, versioned schema migrations
//   - Lifecycle and health checks
//
// The bridge stores two things here: per-device settings (hostname, name)
// and the capability state history.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. New columns must be nullable or carry a default.
package database
