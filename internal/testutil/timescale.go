//go:build integration

package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TimescaleImage is the container image used by integration tests.
const TimescaleImage = "timescale/timescaledb:latest-pg16"

var (
	singletonOnce sync.Once
	singletonDSN  string
	singletonErr  error
)

// ensureTimescale lazily starts one TimescaleDB container for the test binary.
// The container is reaped by ryuk when the process exits.
func ensureTimescale() (string, error) {
	singletonOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx,
			TimescaleImage,
			postgres.WithDatabase("tsdb"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(90*time.Second),
			),
		)
		if err != nil {
			singletonErr = fmt.Errorf("failed to start TimescaleDB container: %w", err)
			return
		}

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = container.Terminate(ctx)
			singletonErr = fmt.Errorf("failed to get TimescaleDB connection string: %w", err)
			return
		}
		singletonDSN = dsn
	})
	return singletonDSN, singletonErr
}

// TimescaleDSN returns the connection string of a running TimescaleDB
// container, skipping the test in -short mode.
func TimescaleDSN(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	dsn, err := ensureTimescale()
	if err != nil {
		t.Fatalf("timescaledb container: %v", err)
	}
	return dsn
}
