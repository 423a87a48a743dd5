// Package db embeds the database schema.
package db

import _ "embed"

// Schema contains the DDL for all service tables. It is idempotent and runs
// on every startup.
//
//go:embed migrations/001_schema.sql
var Schema string
