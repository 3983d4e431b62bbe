// Package containers provides testcontainers-go helpers for
// integration tests that need a real database.
//
// [StartPostgres] starts a PostgreSQL 16 container and returns a
// connection string ready for [postgres.Config.URI]:
//
//	result, err := containers.StartPostgres(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer result.Container.Terminate(ctx)
//	cfg := postgres.Config{URI: result.ConnString, MaxConns: 5}
package containers

import (
	"context"
	"fmt"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// DefaultPostgresImage is the container image used for PostgreSQL
// integration tests. The alpine variant starts fast.
const DefaultPostgresImage = "docker.io/postgres:16-alpine"

// DefaultPostgresDatabase is the database created inside the
// container.
const DefaultPostgresDatabase = "archivist_test"

// DefaultPostgresUser is the superuser name for the container.
const DefaultPostgresUser = "testuser"

// DefaultPostgresPassword is the test superuser password. Weak on
// purpose; the container is ephemeral and local.
const DefaultPostgresPassword = "testpassword"

// PostgresResult holds a started PostgreSQL container and its
// connection string. The caller terminates the container:
//
//	defer result.Container.Terminate(ctx)
//
// ConnString includes sslmode=disable because testcontainers expose
// PostgreSQL on localhost without TLS.
type PostgresResult struct {
	// Container is the started testcontainer handle.
	Container *tcpostgres.PostgresContainer

	// ConnString is a URI-format connection string for
	// [postgres.Config.URI].
	ConnString string
}

// StartPostgres starts a PostgreSQL 16 container and waits for it to
// accept connections. On failure to retrieve the connection string
// the container is terminated before returning.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		DefaultPostgresImage,
		tcpostgres.WithDatabase(DefaultPostgresDatabase),
		tcpostgres.WithUsername(DefaultPostgresUser),
		tcpostgres.WithPassword(DefaultPostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get connection string: %w", err)
	}

	return &PostgresResult{Container: container, ConnString: connStr}, nil
}
