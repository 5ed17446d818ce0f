//go:build tools
// +build tools

// Package tools imports dependencies that are used by this project only
// through drivers, build tags or test helpers, so that they stay tracked in
// go.mod.
package tools

import (
	// Database drivers registered by side effect
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	// Integration tests (build tag integration)
	_ "github.com/testcontainers/testcontainers-go"
	_ "github.com/testcontainers/testcontainers-go/modules/postgres"

	// Temporal
	_ "go.temporal.io/api/enums/v1"
	_ "go.temporal.io/sdk/testsuite"
)
