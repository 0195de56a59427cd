package migrations

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migrate_database "github.com/golang-migrate/migrate/v4/database"
	migrate_postgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migrate_sqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	migrate_iofs "github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/psanford/memfs"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/server/store"
)

const migrationsDir = "migrations"

// GolangMigrateRunner applies a MigrationSet using golang-migrate. Migrations are rendered for the
// target SQL dialect onto an in-memory filesystem which golang-migrate reads as its source.
type GolangMigrateRunner struct {
	migrationData MigrationSet
	logger.Log
}

func NewGolangMigrateRunner(migrationData MigrationSet, logFactory logger.LogFactory) *GolangMigrateRunner {
	return &GolangMigrateRunner{
		migrationData: migrationData,
		Log:           logFactory("GolangMigrateRunner"),
	}
}

// NewRunHistoryMigrateRunner creates a runner for the run history database schema.
func NewRunHistoryMigrateRunner(logFactory logger.LogFactory) *GolangMigrateRunner {
	return NewGolangMigrateRunner(RunHistoryMigrations, logFactory)
}

func (r *GolangMigrateRunner) Up(ctx context.Context, driver store.DBDriver, connectionString store.DatabaseConnectionString) error {
	return r.migrate(ctx, driver, connectionString, "up to latest version", func(m *migrate.Migrate) error {
		return m.Up()
	})
}

func (r *GolangMigrateRunner) Down(ctx context.Context, driver store.DBDriver, connectionString store.DatabaseConnectionString) error {
	return r.migrate(ctx, driver, connectionString, "down to empty database", func(m *migrate.Migrate) error {
		return m.Down()
	})
}

func (r *GolangMigrateRunner) Goto(ctx context.Context, driver store.DBDriver, connectionString store.DatabaseConnectionString, version uint) error {
	return r.migrate(ctx, driver, connectionString, fmt.Sprintf("to version %d", version), func(m *migrate.Migrate) error {
		return m.Migrate(version)
	})
}

func (r *GolangMigrateRunner) Force(ctx context.Context, driver store.DBDriver, connectionString store.DatabaseConnectionString, version uint) error {
	return r.migrate(ctx, driver, connectionString, fmt.Sprintf("forced to version %d", version), func(m *migrate.Migrate) error {
		return m.Force(int(version))
	})
}

// migrate opens a dedicated connection for golang-migrate (which closes it when done) and runs fn.
// golang-migrate does not accept a context so ctx is unused.
func (r *GolangMigrateRunner) migrate(
	ctx context.Context,
	driver store.DBDriver,
	connectionString store.DatabaseConnectionString,
	description string,
	fn func(*migrate.Migrate) error,
) error {
	dialect, err := GetDialectForDriver(driver)
	if err != nil {
		return err
	}
	migrationFS, err := r.ProduceMigrationFiles(dialect)
	if err != nil {
		return err
	}
	source, err := migrate_iofs.New(migrationFS, migrationsDir)
	if err != nil {
		return fmt.Errorf("error creating migration source: %w", err)
	}

	sqlxDB, err := sqlx.Open(driver.String(), connectionString.String())
	if err != nil {
		return fmt.Errorf("error opening %s database for migration: %w", driver, err)
	}
	target, err := r.databaseDriver(driver, sqlxDB)
	if err != nil {
		sqlxDB.Close()
		return err
	}
	migrator, err := migrate.NewWithInstance("iofs", source, driver.String(), target)
	if err != nil {
		sqlxDB.Close()
		return fmt.Errorf("error creating migrator: %w", err)
	}
	defer migrator.Close()

	r.Infof("Running migrations %s...", description)
	err = fn(migrator)
	if err == migrate.ErrNoChange {
		r.Infof("No change needed from migrations")
		return nil
	}
	if err != nil {
		return err
	}
	r.Infof("Migration completed successfully")
	return nil
}

func (r *GolangMigrateRunner) databaseDriver(driver store.DBDriver, db *sqlx.DB) (migrate_database.Driver, error) {
	switch driver {
	case store.Sqlite:
		target, err := migrate_sqlite3.WithInstance(db.DB, &migrate_sqlite3.Config{
			DatabaseName: "sqlite", // ignored for sqlite
		})
		if err != nil {
			return nil, fmt.Errorf("error creating sqlite migration driver: %w", err)
		}
		return target, nil
	case store.Postgres:
		target, err := migrate_postgres.WithInstance(db.DB, &migrate_postgres.Config{
			StatementTimeout:      5 * time.Second,
			MultiStatementEnabled: true,
			MultiStatementMaxSize: migrate_postgres.DefaultMultiStatementMaxSize,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating postgres migration driver: %w", err)
		}
		return target, nil
	}
	return nil, fmt.Errorf("error unsupported migration database driver: %s", driver)
}

// ProduceMigrationFiles renders every migration for the given dialect and writes them to an in-memory
// filesystem using golang-migrate's '{version}_{title}.{up|down}.sql' naming.
func (r *GolangMigrateRunner) ProduceMigrationFiles(dialect *DialectTemplate) (*memfs.FS, error) {
	migrationFS := memfs.New()
	if err := migrationFS.MkdirAll(migrationsDir, 0777); err != nil {
		return nil, err
	}
	for _, migration := range r.migrationData {
		for direction, sql := range map[string]string{"up": migration.UpSQL, "down": migration.DownSQL} {
			path := fmt.Sprintf("%s/%06d_%s.%s.sql", migrationsDir, migration.SequenceNumber, migration.Name, direction)
			rendered, err := renderMigration(path, sql, dialect)
			if err != nil {
				return nil, err
			}
			r.Tracef("Rendered migration %s", path)
			if err := migrationFS.WriteFile(path, rendered, 0755); err != nil {
				return nil, fmt.Errorf("error writing migration %q to in-memory filesystem: %w", path, err)
			}
		}
	}
	return migrationFS, nil
}

func renderMigration(path string, sql string, dialect *DialectTemplate) ([]byte, error) {
	tmpl, err := template.New(path).Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("error parsing migration %q template: %w", path, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, dialect); err != nil {
		return nil, fmt.Errorf("error applying migration %q template: %w", path, err)
	}
	return buf.Bytes(), nil
}
