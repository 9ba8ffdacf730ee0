package db

import (
	"context"
	"fmt"
	"log"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Conn is the global ClickHouse connection
var Conn driver.Conn

// Database is the current database name
var Database string

// Connect establishes a connection to ClickHouse
func Connect(ctx context.Context, addr, database, username, password string) error {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Debug: false,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	log.Printf("connected to ClickHouse at %s", addr)

	Conn = conn
	Database = database
	return nil
}

// Close closes the ClickHouse connection
func Close() error {
	if Conn != nil {
		return Conn.Close()
	}
	return nil
}
