package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solace-voice/internal/config"
	"solace-voice/internal/database"
	"solace-voice/internal/repository"
	"solace-voice/pkg/logger"
)

func main() {
	cfg := config.LoadJournal()
	log := logger.New(logger.Config{Level: cfg.LogLevel})
	defer func() { _ = log.Sync() }()

	log.Info("starting migration")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoDB, err := database.NewMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	if err != nil {
		log.Fatal("MongoDB unavailable", zap.Error(err))
	}
	defer mongoDB.Close()

	names, err := repository.EnsureSessionLogIndexes(ctx, mongoDB.Database)
	if err != nil {
		log.Error("failed to create indexes",
			zap.String("collection", repository.SessionLogCollection), zap.Error(err))
		return
	}

	for _, name := range names {
		log.Info("created index", zap.String("index", name), zap.String("collection", repository.SessionLogCollection))
	}
	log.Info("migration completed successfully")
}
