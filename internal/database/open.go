package database

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/lessonpipe/config"
)

// Dialector 根据驱动名返回 GORM 方言
func Dialector(dc config.DatabaseConfig) (gorm.Dialector, error) {
	switch strings.ToLower(dc.Driver) {
	case "postgres", "postgresql", "pg":
		return postgres.Open(dc.DSN()), nil
	case "mysql", "mariadb":
		return mysql.Open(dc.DSN()), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dc.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", dc.Driver)
	}
}

// Open 打开数据库并按配置调优连接池
func Open(dc config.DatabaseConfig, logger *zap.Logger) (*PoolManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := Dialector(dc)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pc := PoolConfigFrom(dc)
	if err := pc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	logger.Info("database opened",
		zap.String("driver", dc.Driver),
		zap.String("host", dc.Host),
		zap.String("name", dc.Name),
	)
	return NewPoolManager(db, pc, logger)
}
