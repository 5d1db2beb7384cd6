package migration

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/lessonpipe/config"
)

const defaultMigrationsTable = "schema_migrations"

// NewMigratorFromDatabaseConfig builds the golang-migrate URL from the same
// DatabaseConfig the gorm diagnostics store uses. For sqlite, Name is the file path.
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	host, port, user, password, sslMode := dbCfg.Host, dbCfg.Port, dbCfg.User, dbCfg.Password, dbCfg.SSLMode
	switch dbType {
	case DatabaseTypeMySQL:
		sslMode = ""
	case DatabaseTypeSQLite:
		host, port, user, password, sslMode = "", 0, "", "", ""
	}
	url := BuildDatabaseURL(dbType, host, port, dbCfg.Name, user, password, sslMode)
	return newMigrator(dbType, url, logger)
}

// NewMigratorFromURL creates a migrator from an explicit database URL.
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return newMigrator(dt, dbURL, logger)
}

func newMigrator(dbType DatabaseType, url string, logger *zap.Logger) (*DefaultMigrator, error) {
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  url,
		TableName:    defaultMigrationsTable,
		Logger:       logger,
	})
}
