package conn

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"

	"github.com/paybridge/paybridge/infra/logger"
)

type DB struct {
	*sql.DB
}

// ConnectDatabase opens the SQLite database used for durable payment state
func (db *DB) ConnectDatabase(path string) error {
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return err
	}

	// SQLite handles one writer at a time
	database.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return err
	}

	logger.Info("SQLite connected", logger.LogContext{
		Fields: map[string]any{"path": path},
	})
	db.DB = database
	return nil
}

// CloseDatabase closes the SQLite connection
func (db *DB) CloseDatabase() {
	if db.DB == nil {
		return
	}
	if err := db.DB.Close(); err != nil {
		logger.Warn("Failed to close database connection", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
	}
}

// ConnectRedis creates a Redis client for shared health state. The URL is a
// standard redis:// connection string.
func ConnectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
