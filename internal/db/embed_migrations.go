package db

import "embed"

// MigrationFS holds the schema for devices, sessions, challenges, pending logins, login flags
// and the audit log. cmd/migrate and the postgres integration tests apply it.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
