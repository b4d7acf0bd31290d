package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rehiy/modem-fota/models"
)

const memoryPath = ":memory:"

var (
	db   *gorm.DB
	once sync.Once
)

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return db
}

// Ready 数据库是否已初始化
func Ready() bool {
	return db != nil
}

// Close 关闭数据库连接
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitDB 初始化数据库连接，只执行一次
func InitDB(dbPath string) error {
	var err error
	once.Do(func() {
		err = Open(dbPath)
	})
	return err
}

// Open 打开数据库并迁移表结构，替换当前连接
func Open(dbPath string) error {
	if dbPath != memoryPath {
		// 创建目录
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("failed to create db dir: %w", err)
		}
	}

	// 连接数据库
	conn, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// 内存数据库每个连接相互独立，只保留一个连接
	if dbPath == memoryPath {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	db = conn

	// 创建表
	if err := createTables(); err != nil {
		return err
	}

	log.Printf("Database initialized at: %s", dbPath)
	return nil
}

// createTables 创建数据表
func createTables() error {
	// 自动迁移
	err := db.AutoMigrate(
		&models.Upgrade{},
		&models.Webhook{},
		&models.Setting{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	// 初始化默认设置
	if err := InitDefaultSettings(); err != nil {
		return fmt.Errorf("failed to init default settings: %w", err)
	}

	return nil
}
