// 文件: pkg/bank/db.go
// MySQL 连接

package bank

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenMySQL 打开冷存储数据库
// dsn 形如 "user:pass@tcp(127.0.0.1:3306)/vault?charset=utf8mb4&parseTime=True"
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}
