package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feichai0017/document-deskew/pkg/logger"
)

// Config is the configuration shared by the server, the worker and the CLI.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Worker  WorkerConfig  `yaml:"worker"`
	Storage StorageConfig `yaml:"storage"`
	Aligner AlignerConfig `yaml:"aligner"`
	OCR     OCRConfig     `yaml:"ocr"`
	Log     logger.Config `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxUploadSize   int64         `yaml:"maxUploadSize"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WorkerConfig struct {
	Concurrency int            `yaml:"concurrency"`
	Queues      map[string]int `yaml:"queues"`
}

type StorageConfig struct {
	// Type is "minio", "s3" or "memory".
	Type string `yaml:"type"`
}

type AlignerConfig struct {
	Accuracy int    `yaml:"accuracy"`
	MaxSize  int    `yaml:"maxSize"`
	Workers  int    `yaml:"workers"`
	Method   string `yaml:"method"`
}

type OCRConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxUploadSize:   20 << 20,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Worker: WorkerConfig{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
		Storage: StorageConfig{
			Type: "minio",
		},
		Aligner: AlignerConfig{
			Accuracy: 1000,
			MaxSize:  150,
			Method:   "direct",
		},
		OCR: OCRConfig{
			Language: "eng",
		},
		Log: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. A missing file is not an error; an empty path skips
// the file.
func Load(path string) (*Config, error) {
	loadDotEnv()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "DESKEW_SERVER_ADDR")
	setString(&c.Redis.Addr, "DESKEW_REDIS_ADDR")
	setString(&c.Redis.Password, "DESKEW_REDIS_PASSWORD")
	setString(&c.Storage.Type, "DESKEW_STORAGE_TYPE")
	setString(&c.Aligner.Method, "DESKEW_ALIGNER_METHOD")
	setString(&c.OCR.Language, "DESKEW_OCR_LANGUAGE")
	setString(&c.Log.Level, "DESKEW_LOG_LEVEL")

	for key, dst := range map[string]*int{
		"DESKEW_REDIS_DB":           &c.Redis.DB,
		"DESKEW_WORKER_CONCURRENCY": &c.Worker.Concurrency,
		"DESKEW_ALIGNER_ACCURACY":   &c.Aligner.Accuracy,
		"DESKEW_ALIGNER_WORKERS":    &c.Aligner.Workers,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv("DESKEW_OCR_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DESKEW_OCR_ENABLED %q: %w", v, err)
		}
		c.OCR.Enabled = enabled
	}
	return nil
}

// Validate checks values the services cannot start without.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "minio", "s3", "memory":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	switch c.Aligner.Method {
	case "", "direct", "fast":
	default:
		return fmt.Errorf("unsupported aligner method %q", c.Aligner.Method)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Server.MaxUploadSize < 1 {
		return fmt.Errorf("max upload size must be positive, got %d", c.Server.MaxUploadSize)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}
