package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-deskew/api/handlers"
	"github.com/feichai0017/document-deskew/api/routes"
	"github.com/feichai0017/document-deskew/config"
	"github.com/feichai0017/document-deskew/internal/app"
	"github.com/feichai0017/document-deskew/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(
		logger.WithConfig(cfg.Log),
		logger.WithInitialFields(map[string]interface{}{"service": "deskew-server"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// init alignment service
	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize alignment service", logger.Error(err))
	}
	defer a.Close()

	// init handlers
	h := handlers.NewHandlers(a.Service, log)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.Server.MaxUploadSize
	routes.SetupRoutes(r, h, routes.Options{Logger: log, MaxUploadSize: cfg.Server.MaxUploadSize})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
