package checkpoint_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres starts a disposable PostgreSQL container and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	// Give generous timeout in CI environments
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	postgresC, err := testcontainers.Run(
		ctx, "postgres:16",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("ready to accept connections"),
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://taskrouter:taskrouter@%s:%s/taskrouter_test?sslmode=disable", host, port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "taskrouter",
			"POSTGRES_PASSWORD": "taskrouter",
			"POSTGRES_DB":       "taskrouter_test",
		}),
	)
	testcontainers.CleanupContainer(t, postgresC)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	endpoint, err := postgresC.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("postgres endpoint: %v", err)
	}
	return fmt.Sprintf("postgres://taskrouter:taskrouter@%s/taskrouter_test?sslmode=disable", endpoint)
}

// startMongo starts a disposable MongoDB container and returns its URI.
func startMongo(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	mongoC, err := testcontainers.Run(
		ctx, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("mongod startup complete"),
		),
	)
	testcontainers.CleanupContainer(t, mongoC)
	if err != nil {
		t.Fatalf("start mongo: %v", err)
	}

	endpoint, err := mongoC.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("mongo endpoint: %v", err)
	}
	return fmt.Sprintf("mongodb://%s", endpoint)
}
