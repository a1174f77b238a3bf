// Package database provides SQL connectivity for the IoT System API.
//
// The primary store is SQLite (WAL mode, foreign keys on, single writer).
// OpenPostgres opens an optional PostgreSQL pool through the pgx driver for
// deployments that share revoked tokens between instances.
//
// Schema changes live in the top-level migrations package as
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs and are applied with Migrate:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
