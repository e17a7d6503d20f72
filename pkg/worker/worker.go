package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-deskew/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
	// RetryDelay 第 n 次重试前等待 n*RetryDelay
	RetryDelay time.Duration
}

type BaseWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger logger.Logger
}

func newBaseWorker(cfg *Config, log logger.Logger) BaseWorker {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Minute
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * delay
			},
			Logger: &asynqLogger{log: log.Named("asynq")},
		},
	)

	return BaseWorker{
		server: server,
		mux:    asynq.NewServeMux(),
		logger: log,
	}
}

// Start 启动服务，ctx 结束时优雅退出
func (w *BaseWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

func (w *BaseWorker) Stop() error {
	w.server.Shutdown()
	return nil
}

// asynqLogger 将 asynq 的日志接入 zap
type asynqLogger struct {
	log logger.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(sprint(args)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(sprint(args)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(sprint(args)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(sprint(args)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.log.Fatal(sprint(args)) }
