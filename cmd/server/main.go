package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/segmask-api/internal/config"
	"github.com/Brownie44l1/segmask-api/internal/engine"
	"github.com/Brownie44l1/segmask-api/internal/handlers"
	"github.com/Brownie44l1/segmask-api/internal/logger"
)

func main() {
	if err := config.Init(config.ParseConfigFlag()); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	logger, _ := logger.GetZapLogger(ctx)
	defer logger.Sync() //nolint

	cfg := config.Config
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Info("loading model",
		zap.String("backend", cfg.Model.Backend),
		zap.String("path", cfg.Model.Path))

	segmenter, err := engine.Open(cfg.Model)
	if err != nil {
		logger.Fatal("failed to initialize segmenter", zap.Error(err))
	}
	defer segmenter.Close()

	handler := handlers.NewHandler(segmenter, cfg.Render, cfg.Server.MaxUploadMB)
	router := handlers.NewRouter(handler, cfg.Server.StaticDir)

	logger.Info("server starting",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("classes", segmenter.Classes()))

	if err := router.Run(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
