package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"token-analyzer/internal/worker"
	"token-analyzer/internal/worker/config"
	"token-analyzer/pkg/logger"
)

func main() {
	// 初始化配置文件
	cfg := config.InitConfig()

	// 初始化 trace provider
	logger.InitTrace("token-analyzer", "analyzer")
	// 启动主 span
	ctx, span := logger.StartSpan(context.Background(), "main", "main")
	defer span.End()

	// 创建 root logger 并注入 trace 上下文
	rootLogger := logger.NewLoggerWithOptions("analyzer", logger.Options{Dir: cfg.Log.Dir})
	logger.SetLogLevel(cfg.Log.Level)
	tl := logger.WithTrace(ctx, rootLogger)

	// 启动配置热加载监听
	go config.WatchConfig(&cfg)

	core, err := worker.New(cfg, tl)
	if err != nil {
		tl.Fatal("Failed to initialize analyzer", zap.Error(err))
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		tl.Info("Starting token analyzer...")
		core.Start(runCtx)
	}()

	// 监听操作系统信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	tl.Info("Received shutdown signal, starting graceful shutdown...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	core.Stop(shutdownCtx)

	tl.Info("Shutdown complete")
}
