package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feichai0017/document-deskew/config"
	"github.com/feichai0017/document-deskew/internal/app"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	cleanupEvery := flag.Duration("cleanup-interval", time.Hour, "how often expired objects are removed, 0 disables")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithConfig(cfg.Log),
		logger.WithInitialFields(map[string]interface{}{"service": "deskew-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 创建校正服务
	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("Failed to create alignment service", logger.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	// 创建 worker
	alignWorker, err := worker.NewAlignWorker(app.WorkerConfig(cfg), a.Service, log)
	if err != nil {
		log.Error("Failed to create align worker", logger.Error(err))
		os.Exit(1)
	}

	// 创建上下文和取消函数
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动 worker
	if err := alignWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	// 定期清理过期文件
	if *cleanupEvery > 0 {
		go func() {
			ticker := time.NewTicker(*cleanupEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := a.Service.CleanupTasks(ctx); err != nil {
						log.Error("Cleanup failed", logger.Error(err))
					}
				}
			}
		}()
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	cancel()
	alignWorker.Stop()
	log.Info("Worker stopped")
}
