// Package app wires configuration into the services shared by the server and
// the worker.
package app

import (
	"errors"
	"fmt"

	"github.com/feichai0017/document-deskew/config"
	"github.com/feichai0017/document-deskew/internal/agent"
	"github.com/feichai0017/document-deskew/internal/agent/document"
	imageagent "github.com/feichai0017/document-deskew/internal/agent/document/image"
	"github.com/feichai0017/document-deskew/internal/agent/ocr"
	"github.com/feichai0017/document-deskew/internal/service/alignment"
	"github.com/feichai0017/document-deskew/internal/utils/validator"
	"github.com/feichai0017/document-deskew/pkg/logger"
	"github.com/feichai0017/document-deskew/pkg/queue"
	"github.com/feichai0017/document-deskew/pkg/skew"
	"github.com/feichai0017/document-deskew/pkg/spectral"
	"github.com/feichai0017/document-deskew/pkg/storage"
	"github.com/feichai0017/document-deskew/pkg/worker"
)

type App struct {
	Service *alignment.AlignmentService
	Queue   *queue.AsynqQueue
	factory *agent.ProcessorFactory
}

// NewAligner builds an aligner from the aligner section of the config.
func NewAligner(cfg config.AlignerConfig, log logger.Logger) (*skew.Aligner, error) {
	method, err := spectral.ParseMethod(cfg.Method)
	if err != nil {
		return nil, err
	}
	return skew.NewAligner(
		skew.WithLogger(log.Named("aligner")),
		skew.WithAccuracy(cfg.Accuracy),
		skew.WithMaxSize(cfg.MaxSize),
		skew.WithWorkers(cfg.Workers),
		skew.WithMethod(method),
	), nil
}

// NewProcessor builds the image processor, with Tesseract when OCR is enabled.
func NewProcessor(cfg *config.Config, log logger.Logger) (*imageagent.Processor, error) {
	aligner, err := NewAligner(cfg.Aligner, log)
	if err != nil {
		return nil, err
	}

	var recognizer document.TextRecognizer
	if cfg.OCR.Enabled {
		recognizer = ocr.NewEngine(ocr.DefaultConfig(cfg.OCR.Language), log.Named("ocr"))
	}
	return imageagent.NewProcessor(log, aligner, recognizer, nil)
}

// New connects storage and the queue and builds the alignment service.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	// 初始化存储
	store, err := storage.NewStorage(storage.StorageType(cfg.Storage.Type), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// 初始化队列
	q, err := queue.NewAsynqQueue(queue.DefaultQueueConfig(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	// 初始化处理器工厂
	proc, err := NewProcessor(cfg, log)
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("failed to initialize processor: %w", err)
	}
	factory, err := agent.NewProcessorFactory(log, proc)
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("failed to initialize processor factory: %w", err)
	}

	v := validator.NewImageValidator(log, &validator.ValidatorConfig{
		MaxFileSize:  cfg.Server.MaxUploadSize,
		AllowedTypes: validator.DefaultConfig().AllowedTypes,
		MinDimension: 1,
		MaxDimension: validator.DefaultConfig().MaxDimension,
		MaxPixels:    validator.DefaultConfig().MaxPixels,
	})

	svc := alignment.NewService(factory, v, q, store, log, alignment.DefaultServiceConfig())
	return &App{Service: svc, Queue: q, factory: factory}, nil
}

// WorkerConfig maps the worker and redis sections onto worker.Config.
func WorkerConfig(cfg *config.Config) *worker.Config {
	return &worker.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
		Queues:        cfg.Worker.Queues,
	}
}

func (a *App) Close() error {
	return errors.Join(a.factory.Close(), a.Queue.Close())
}
