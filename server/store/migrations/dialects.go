package migrations

import (
	"fmt"

	"github.com/buildbeaver/depchain/server/store"
)

// DialectTemplate is used as the templating control for differing SQL syntax between our supported databases
type DialectTemplate struct {
	Binary            string
	IntegerPrimaryKey string
	Timestamp         string
	BigInt            string
}

func NewPostgresDialectTemplate() *DialectTemplate {
	return &DialectTemplate{
		Binary:            "BYTEA",
		IntegerPrimaryKey: "SERIAL PRIMARY KEY",
		Timestamp:         "timestamp without time zone",
		BigInt:            "bigint",
	}
}

func NewSqliteDialectTemplate() *DialectTemplate {
	return &DialectTemplate{
		Binary:            "BLOB",
		IntegerPrimaryKey: "integer NOT NULL PRIMARY KEY AUTOINCREMENT",
		Timestamp:         "timestamp without time zone",
		BigInt:            "integer",
	}
}

func GetDialectForDriver(driver store.DBDriver) (*DialectTemplate, error) {
	switch driver {
	case store.Sqlite:
		return NewSqliteDialectTemplate(), nil
	case store.Postgres:
		return NewPostgresDialectTemplate(), nil
	}
	return nil, fmt.Errorf("error unsupported database driver: %s", driver)
}
