// Package containers starts throwaway databases for end-to-end tests.
package containers

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupMySQL creates and starts a MySQL container with an empty test database.
func SetupMySQL(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := mysql.RunContainer(ctx,
		testcontainers.WithImage("mysql:8.4"),
		mysql.WithDatabase("docstore"),
		mysql.WithUsername("testuser"),
		mysql.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("ready for connections").
				WithOccurrence(1).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start MySQL container: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "3306")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get MySQL mapped port: %w", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get MySQL host: %w", err)
	}

	dsn := fmt.Sprintf("testuser:testpass@tcp(%s:%s)/docstore?parseTime=true", host, mappedPort.Port())
	return container, dsn, nil
}
