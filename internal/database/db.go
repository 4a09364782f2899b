// Package database opens the MySQL pool behind the persistence gateway.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Options describe the connection and its pool. Zero pool values fall
// back to defaults sized for one API instance.
type Options struct {
	User string
	Pass string
	Host string
	Port string
	Name string

	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

func (o Options) dsn() string {
	auth := o.User
	if o.Pass != "" {
		auth += ":" + o.Pass
	}
	// parseTime maps DATETIME to time.Time; loc=UTC keeps every stored
	// timestamp comparable with the service clock.
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, o.Host, o.Port, o.Name)
}

func (o Options) withDefaults() Options {
	if o.MaxOpen <= 0 {
		o.MaxOpen = 25
	}
	if o.MaxIdle <= 0 || o.MaxIdle > o.MaxOpen {
		o.MaxIdle = o.MaxOpen
	}
	if o.MaxLifetime <= 0 {
		o.MaxLifetime = 30 * time.Minute
	}
	return o
}

// Open connects to MySQL, applies the pool settings and verifies the
// connection with a bounded ping.
func Open(o Options) (*sql.DB, error) {
	o = o.withDefaults()

	db, err := sql.Open("mysql", o.dsn())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(o.MaxOpen)
	db.SetMaxIdleConns(o.MaxIdle)
	db.SetConnMaxLifetime(o.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}
