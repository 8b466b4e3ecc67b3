package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/gateway-next/internal/config"
	"github.com/gateway-next/internal/logger"
	"github.com/gateway-next/internal/models"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 默认管理员
	adminUser := os.Getenv("GW_DEFAULT_ADMIN_USERNAME")
	adminPass := os.Getenv("GW_DEFAULT_ADMIN_PASSWORD")
	if err := models.InitDefaultAdmin(adminUser, adminPass); err != nil {
		stdLog.Fatalf("Failed to init default admin: %v", err)
	}
	stdLog.Println("Default admin ready")

	// 演示应用
	var existing models.App
	result := models.DB.Where("name = ?", "demo-app").Limit(1).Find(&existing)
	if result.Error != nil {
		stdLog.Fatalf("Failed to query demo app: %v", result.Error)
	}
	if result.RowsAffected > 0 {
		stdLog.Printf("Demo app already exists: id=%d api_key=%s", existing.ID, existing.APIKey)
	} else {
		apiKey, err := generateAPIKey()
		if err != nil {
			stdLog.Fatalf("Failed to generate api key: %v", err)
		}
		app := models.App{
			Name:      "demo-app",
			APIKey:    apiKey,
			NotifyURL: "http://localhost:9000/webhooks",
			IsActive:  true,
		}
		if err := models.DB.Create(&app).Error; err != nil {
			stdLog.Fatalf("Failed to create demo app: %v", err)
		}
		stdLog.Printf("Created demo app: id=%d api_key=%s", app.ID, app.APIKey)
	}

	fmt.Println("\n✅ Seed data created successfully!")
	fmt.Println("Summary:")
	fmt.Println("- Default admin (username: admin unless overridden)")
	fmt.Println("- Demo merchant app with API key")
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk_" + hex.EncodeToString(buf), nil
}
