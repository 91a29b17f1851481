//go:build integration

package repository

import (
	"testing"

	"session-trust-engine/internal/platform/pgtest"
)

func TestPostgresRepository(t *testing.T) {
	exerciseRepository(t, NewPostgresRepository(pgtest.Start(t)))
}
