package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB is the Postgres handle behind the repositories, using database/sql over
// the pgx stdlib driver.
type DB struct {
	Client *sql.DB
}

// NewDB opens the Postgres pool. The server and the offload worker are the
// only clients, so the pool stays small.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close releases the pool.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
