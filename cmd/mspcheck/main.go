package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"agrimandi/internal/config"
	"agrimandi/internal/market"
	"agrimandi/internal/model"
	"agrimandi/internal/pkg/logger"
	"agrimandi/internal/pkg/notify"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// main 一次性执行一轮低于 MSP 的提醒对账，供 cron 或运维手动使用。
//
// 与 API 服务内置的调度器共用同一套对账逻辑，提醒生成是幂等的，
// 两边叠加跑也不会产生重复提醒。
func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径（默认 configs/config.json）")
		withEmail  = flag.Bool("email", false, "对新生成的提醒发送邮件通知")
		timeout    = flag.Duration("timeout", 2*time.Minute, "单轮对账超时")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	appLogger := logger.NewDefault(cfg.App.LogLevel)

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		appLogger.Error("open database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := db.AutoMigrate(&model.UserAlert{}); err != nil {
		appLogger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var notifier notify.Notifier
	if *withEmail {
		notifier = notify.NewEmailNotifier(&cfg.Email, appLogger)
	}

	generator := market.NewGenerator(market.NewGormStore(db), notifier, cfg.App.MSPSeason, appLogger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	created, err := generator.CheckBelowMSP(ctx)
	if err != nil {
		appLogger.Error("msp reconciliation failed",
			slog.Int("alerts_created", created),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("msp reconciliation finished",
		slog.String("season", cfg.App.MSPSeason),
		slog.Int("alerts_created", created))
}
