package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"banyan/internal/app"
	"banyan/internal/config"
	"banyan/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	var (
		backtestMode bool
		sweepMode    bool
	)
	flag.BoolVar(&backtestMode, "backtest", false, "回放模式:跑完数据集输出报表后退出")
	flag.BoolVar(&sweepMode, "sweep", false, "扫描模式:跑完参数网格后退出")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfgPath := os.Getenv("BANYAN_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	closeLog, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志输出失败: %v", err)
	}
	defer closeLog()
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功: %s (env=%s symbol=%s feed=%s)",
		cfgPath, cfg.App.Env, cfg.Instrument.Symbol, cfg.Feed.Mode)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case sweepMode:
		if err := app.RunSweep(ctx, cfg); err != nil {
			log.Fatalf("参数扫描失败: %v", err)
		}
	case backtestMode:
		if err := app.RunBacktest(ctx, cfg); err != nil {
			log.Fatalf("回测失败: %v", err)
		}
	default:
		application, err := app.NewApp(cfg)
		if err != nil {
			log.Fatalf("初始化失败: %v", err)
		}
		if err := application.Run(ctx); err != nil {
			log.Fatalf("运行失败: %v", err)
		}
	}
}

// setupLogOutput 让 slog 与标准库 log 同时写 stdout 和日志文件。
func setupLogOutput(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := logger.TeeFile(path)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return func() { _ = f.Close() }, nil
}
