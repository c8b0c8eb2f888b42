// Package database provides SQL connectivity for the gpio-remote audit log.
//
// Two drivers are supported: SQLite through mattn/go-sqlite3 (the default,
// a single file with WAL mode) and PostgreSQL through lib/pq. Queries are
// written with ? placeholders and rebound for PostgreSQL by the DB wrapper.
//
// Schema migrations are embedded SQL files named
// YYYYMMDD_HHMMSS_description.up.sql and .down.sql. Each dialect keeps its
// own directory so that column types can differ.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/gpioremote.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
