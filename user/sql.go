// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"   // Register postgres driver
	_ "modernc.org/sqlite" // Register sqlite driver
)

// Supported SQLDirectory drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqliteBusyTimeout is how long a sqlite connection waits on a locked
// database before failing with SQLITE_BUSY.
const sqliteBusyTimeout = "_pragma=busy_timeout(5000)"

// SQLDirectory is a Directory backed by a SQL database. Statements use $N
// placeholders, which both the sqlite and postgres drivers accept.
type SQLDirectory struct {
	db    *sql.DB
	table string
}

var _ Directory = (*SQLDirectory)(nil)

// NewSQLDirectory creates a SQLDirectory using db. Call Migrate before first
// use when the table may not exist yet.
//
// Supported options: WithTable
func NewSQLDirectory(db *sql.DB, opt ...Option) (*SQLDirectory, error) {
	const op = "user.NewSQLDirectory"
	if db == nil {
		return nil, fmt.Errorf("%s: db is nil: %w", op, ErrNilParameter)
	}
	opts := getDirectoryOpts(opt...)
	return &SQLDirectory{db: db, table: opts.withTable}, nil
}

// OpenSQLDirectory opens dsn with driver (DriverSQLite or DriverPostgres),
// checks the connection and migrates the schema.
//
// A sqlite database is used through a single connection that waits on locks,
// so concurrent upserts queue up instead of failing with SQLITE_BUSY.
//
// Supported options: WithTable
func OpenSQLDirectory(ctx context.Context, driver, dsn string, opt ...Option) (*SQLDirectory, error) {
	const op = "user.OpenSQLDirectory"
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("%s: unsupported driver %q: %w", op, driver, ErrInvalidParameter)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: dsn is empty: %w", op, ErrInvalidParameter)
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	d, err := NewSQLDirectory(db, opt...)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := d.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// sqliteDSN adds a busy timeout to dsn unless it sets one.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteBusyTimeout
	}
	return dsn + "?" + sqliteBusyTimeout
}

// Migrate creates the users table if it doesn't exist.
func (d *SQLDirectory) Migrate(ctx context.Context) error {
	const op = "SQLDirectory.Migrate"
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`, d.table)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: failed to create table %s: %w", op, d.table, err)
	}
	return nil
}

// FindBySubject implements Directory.
func (d *SQLDirectory) FindBySubject(ctx context.Context, id string) (*User, error) {
	const op = "SQLDirectory.FindBySubject"
	var u User
	err := d.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, name FROM %s WHERE id = $1`, d.table),
		id,
	).Scan(&u.ID, &u.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to query user: %w", op, err)
	}
	return &u, nil
}

// Upsert implements Directory.
func (d *SQLDirectory) Upsert(ctx context.Context, u User) (*User, bool, error) {
	const op = "SQLDirectory.Upsert"
	if err := u.validate(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	res, err := d.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, d.table),
		u.ID, u.Name,
	)
	if err != nil {
		return nil, false, fmt.Errorf("%s: failed to insert user: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("%s: failed to read rows affected: %w", op, err)
	}
	if n == 1 {
		return &u, true, nil
	}
	existing, err := d.FindBySubject(ctx, u.ID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return existing, false, nil
}

// Ping checks the database connection (health check).
func (d *SQLDirectory) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the underlying database.
func (d *SQLDirectory) Close() error {
	return d.db.Close()
}
