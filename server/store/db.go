package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type DatabaseConfig struct {
	ConnectionString   DatabaseConnectionString
	Driver             DBDriver
	MaxIdleConnections int
	MaxOpenConnections int
}

type DBDriver string

func (d DBDriver) String() string {
	return string(d)
}

type DatabaseConnectionString string

func (d DatabaseConnectionString) String() string {
	return string(d)
}

const (
	Sqlite                            DBDriver = "sqlite3"
	Postgres                          DBDriver = "postgres"
	DefaultDatabaseMaxIdleConnections          = 2
	DefaultDatabaseMaxOpenConnections          = 4
)

// DB is the run history database. sqlite only tolerates one writer at a time, so on sqlite
// writes are serialized with lock and reads share it.
type DB struct {
	*sqlx.DB
	Driver           DBDriver
	ConnectionString DatabaseConnectionString
	lock             sync.RWMutex
}

type Tx struct {
	tx *sqlx.Tx
}

// MigrationRunner interface defines a set of methods for applying database migrations.
type MigrationRunner interface {
	// Up migrates the given database up to the latest version.
	Up(ctx context.Context, driver DBDriver, connectionString DatabaseConnectionString) error
	// Down migrates the given database down to empty.
	Down(ctx context.Context, driver DBDriver, connectionString DatabaseConnectionString) error
	// Goto migrates the given database to the specified version.
	Goto(ctx context.Context, driver DBDriver, connectionString DatabaseConnectionString, version uint) error
	// Force marks the database as clean and already migrated to the specified version.
	Force(ctx context.Context, driver DBDriver, connectionString DatabaseConnectionString, version uint) error
}

// NewDatabase performs any database specific init required before returning a new database connection
// pool using the specified DatabaseConfig, as well as a cleanup function to call to close the database again.
// If a MigrationRunner is supplied then an 'Up' migration will be performed to ensure the database schema
// is up to the latest version.
func NewDatabase(
	ctx context.Context,
	config DatabaseConfig,
	migrationRunner MigrationRunner,
) (*DB, func(), error) {
	switch config.Driver {
	case Sqlite:
		if err := SQLiteConnectionInit(string(config.ConnectionString)); err != nil {
			return nil, nil, err
		}
	case Postgres:
	default:
		return nil, nil, fmt.Errorf("unknown database driver %s", config.Driver)
	}

	sqlxDB, err := sqlx.Open(string(config.Driver), string(config.ConnectionString))
	if err != nil {
		return nil, nil, fmt.Errorf("error opening %s database: %w", config.Driver, err)
	}
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, nil, fmt.Errorf("error pinging %s database: %w", config.Driver, err)
	}

	if migrationRunner != nil {
		if err := migrationRunner.Up(ctx, config.Driver, config.ConnectionString); err != nil {
			sqlxDB.Close()
			return nil, nil, fmt.Errorf("error running %s database migrations: %w", config.Driver, err)
		}
	}

	db := &DB{
		DB:               sqlxDB,
		Driver:           config.Driver,
		ConnectionString: config.ConnectionString,
	}
	maxIdle, maxOpen := config.MaxIdleConnections, config.MaxOpenConnections
	if maxIdle <= 0 {
		maxIdle = DefaultDatabaseMaxIdleConnections
	}
	if maxOpen <= 0 {
		maxOpen = DefaultDatabaseMaxOpenConnections
	}
	db.DB.SetMaxIdleConns(maxIdle)
	db.DB.SetMaxOpenConns(maxOpen)
	cleanup := func() {
		db.Close()
	}
	return db, cleanup, nil
}

// SQLiteConnectionInit creates the database file (and its directory) for file based connection strings.
func SQLiteConnectionInit(connectionString string) error {
	// In-memory connection strings contain both a :memory: and a file: directive.
	// See https://github.com/mattn/go-sqlite3/issues/677
	if strings.Contains(connectionString, ":memory:") {
		return nil
	}
	const sqliteFileKeyword = "file:"
	s := strings.Index(connectionString, sqliteFileKeyword)
	if s == -1 {
		return nil
	}
	databaseFilePath := connectionString[s+len(sqliteFileKeyword):]
	if e := strings.Index(databaseFilePath, "?"); e != -1 {
		databaseFilePath = databaseFilePath[:e]
	}

	dir := filepath.Dir(databaseFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error ensuring database directory %q exists: %w", dir, err)
	}
	file, err := os.OpenFile(databaseFilePath, os.O_RDONLY|os.O_CREATE, 0660)
	if err != nil {
		return fmt.Errorf("error opening or creating database file %q: %w", databaseFilePath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("error closing database file: %w", err)
	}
	return nil
}

// WithTx runs fn inside a database transaction. If fn returns an error the
// transaction will be rolled back and aborted. If fn returns nil, that transaction
// will be committed. If txOrNil is supplied fn simply joins that transaction.
func (d *DB) WithTx(ctx context.Context, txOrNil *Tx, fn func(tx *Tx) error) error {
	if txOrNil != nil {
		return fn(txOrNil)
	}
	if d.Driver == Sqlite {
		d.lock.Lock()
		defer d.lock.Unlock()
	}

	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning database transaction")
	}
	if err := fn(&Tx{tx}); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Wrapf(rollbackErr, "error rolling back database transaction: %s", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing database transaction")
	}
	return nil
}

// Write calls fn with a goqu database bound to the transaction if one is supplied,
// otherwise to the connection pool.
func (d *DB) Write(txOrNil *Tx, fn func(Writer) error) error {
	if txOrNil == nil {
		if d.Driver == Sqlite {
			d.lock.Lock()
			defer d.lock.Unlock()
		}
		return fn(goqu.New(d.DriverName(), d.DB))
	}
	return fn(goqu.NewTx(d.DriverName(), txOrNil.tx))
}

// Read calls fn with a goqu database bound to the transaction if one is supplied,
// otherwise to the connection pool.
func (d *DB) Read(txOrNil *Tx, fn func(Reader) error) error {
	if txOrNil == nil {
		if d.Driver == Sqlite {
			d.lock.RLock()
			defer d.lock.RUnlock()
		}
		return fn(goqu.New(d.DriverName(), d.DB))
	}
	return fn(goqu.NewTx(d.DriverName(), txOrNil.tx))
}

// Close the connection to the database. The DB object must not be used
// after a call to Close.
func (d *DB) Close() error {
	return d.DB.Close()
}

type Writer interface {
	Reader
	Update(table interface{}) *goqu.UpdateDataset
	Insert(table interface{}) *goqu.InsertDataset
	Delete(table interface{}) *goqu.DeleteDataset
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type Reader interface {
	From(from ...interface{}) *goqu.SelectDataset
	Select(cols ...interface{}) *goqu.SelectDataset
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ScanStructsContext(ctx context.Context, i interface{}, query string, args ...interface{}) error
	ScanStructContext(ctx context.Context, i interface{}, query string, args ...interface{}) (bool, error)
	ScanValContext(ctx context.Context, i interface{}, query string, args ...interface{}) (bool, error)
}
