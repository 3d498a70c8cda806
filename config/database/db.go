package database

import (
	"database/sql"
	"fmt"
	"time"

	"satukanvas/config"
	"satukanvas/pkg/logger"

	_ "github.com/lib/pq"
)

// Connect opens the Postgres pool and pings it with a few retries to ride
// out DNS or network blips during startup.
func Connect(cfg config.Database) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return db, nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
		time.Sleep(2 * time.Second)
	}
	db.Close()
	return nil, fmt.Errorf("could not connect to database after retries: %w", err)
}
