// Package database handles database connections, migrations and schema inspection.
//
// It wraps GORM to configure MySQL (production) or SQLite (tests and local runs)
// connections from the application's configuration. Errors are translated by
// GORM so callers can match gorm.ErrDuplicatedKey on unique constraint violations.
//
// # Schema Inspection
//
// GetTableColumns lists a table's columns for the schema integrity check, which
// verifies that every model's columns exist in the live database.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//	if err := database.Migrate(db, inventory.Models()...); err != nil { ... }
//
//	columns, err := database.GetTableColumns(db, "lots")
package database
