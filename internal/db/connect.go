package db

import (
	"fmt"
	"net"
	"strconv"

	drv "github.com/go-sql-driver/mysql"
	"github.com/zulandar/docket/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN returns the MySQL DSN for cfg. An explicit cfg.DSN is returned as is.
func DSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return mysqlConfig(cfg, cfg.Name).FormatDSN()
}

func mysqlConfig(cfg config.DatabaseConfig, database string) *drv.Config {
	mc := drv.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = database
	mc.ParseTime = true
	return mc
}

func gormConfig(cfg config.DatabaseConfig) *gorm.Config {
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	return &gorm.Config{Logger: logger.Default.LogMode(level)}
}

// Open connects to the database selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DSN), gormConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", cfg.DSN, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: sqlite pool: %w", err)
		}
		// sqlite serializes writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case "mysql":
		db, err := gorm.Open(mysql.Open(DSN(cfg)), gormConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

// ConnectAdmin opens a MySQL connection without selecting a database, used
// for CREATE DATABASE.
func ConnectAdmin(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(mysqlConfig(cfg, "").FormatDSN()), gormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("db: admin connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// CreateDatabase creates the named database if it doesn't already exist.
func CreateDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", name, err)
	}
	return nil
}
