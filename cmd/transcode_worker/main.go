package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"video_ingest_service/internal/transcode/app"
	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"
	"video_ingest_service/pkg/retry"
	testtool "video_ingest_service/pkg/test_tool"

	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerLogPath)

	cfg := config.LoadConfig[config.Worker](config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerYAMLPath)

	// 非 production 環境開 pprof
	testtool.StartPprof()

	// 1. 初始化 MinIO 客戶端
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:   fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
		User:       cfg.MinIO.User,
		Password:   cfg.MinIO.Password,
		BucketName: cfg.MinIO.BucketName,
		UseSSL:     cfg.MinIO.UseSSL,

		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to minio after retries",
			zap.Error(err),
		)
	}

	// 2. 連線 RabbitMQ
	// 斷線後 repo 會在下一次操作重撥，supervisor 重啟消費迴圈時拿到活的 channel
	rabbitURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port)
	rabbitRepo := database.NewReconnectingRabbitRepo(database.Connection{
		ConnectStr:    rabbitURL,
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval),
	})
	defer rabbitRepo.Close()

	// 先宣告 queue，連不上 broker 就不要啟動
	if err := rabbitRepo.DeclareQueue(domain.QueueVideoProcessing); err != nil {
		log.Fatalf("Queue Declare [%s] failed: %v", domain.QueueVideoProcessing, err)
	}

	// 3. 組裝轉碼消費者
	transcoder := app.NewFFmpegTranscoder(minioClient, "./tmp")
	consumer := app.NewConsumer(rabbitRepo, transcoder)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 消費迴圈包在 supervisor 裡，斷線後指數回退重啟
	retry.Forever(ctx, "transcode-worker", consumer.Run)

	logger.Log.Info("transcode worker 已停止")
}
