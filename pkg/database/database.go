package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池参数，零值使用默认
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Open 按 driver 打开数据库，支持 postgres 与 mysql
func Open(driver, dsn string, pool PoolConfig) (*gorm.DB, error) {
	switch strings.ToLower(driver) {
	case "", "postgres", "pg":
		return InitPG(dsn, pool)
	case "mysql":
		return InitMySQL(dsn, pool)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func InitPG(dsn string, pool PoolConfig) (*gorm.DB, error) {
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, err
	}
	if err := applyPool(gormDB, pool, 10, 100); err != nil {
		return nil, err
	}
	return gormDB, nil
}

func InitMySQL(dsn string, pool PoolConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, err
	}
	if err := applyPool(db, pool, 20, 100); err != nil {
		return nil, err
	}
	return db, nil
}

func applyPool(db *gorm.DB, pool PoolConfig, defaultIdle, defaultOpen int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = defaultIdle
	}
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = defaultOpen
	}
	if pool.ConnMaxIdleTime <= 0 {
		pool.ConnMaxIdleTime = 10 * time.Minute
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = time.Hour
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	return nil
}
