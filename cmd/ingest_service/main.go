package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"video_ingest_service/internal/upload/api/handlers"
	"video_ingest_service/internal/upload/api/router"
	"video_ingest_service/internal/upload/app"
	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/internal/upload/repository"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"
	"video_ingest_service/pkg/retry"
	testtool "video_ingest_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.IngestService, config.EnvConfig.IngestServiceLogPath)

	cfg := config.LoadConfig[config.Ingest](config.EnvConfig.IngestService, config.EnvConfig.IngestServiceYAMLPath)

	// 非 production 環境開 pprof
	testtool.StartPprof()

	// 1. 連線 PostgreSQL
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.PostgreSQL.Host, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database, cfg.PostgreSQL.Port)
	db, err := database.NewPGConnection(database.Connection{
		ConnectStr: dsn,

		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s]", dsn)),
			zap.Error(err),
		)
	}

	// 自動遷移影片資料表
	videoRepo := repository.NewVideoRepo(db)
	if err := videoRepo.AutoMigrate(); err != nil {
		log.Fatalf("資料表遷移失敗: %v", err)
	}

	// 2. 連線 Redis，上傳 session 都存在這裡
	masterName, sentinelAddrs := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinelAddrs, cfg.Redis.RedisDB)
	if err != nil {
		log.Fatalf("Redis 連線失敗: %v", err)
	}
	defer redisClient.Close()
	sessionRepo := repository.NewUploadSessionRepo(redisClient)

	// 3. 初始化 MinIO 客戶端
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

	// 4. 連線 RabbitMQ 並宣告 pipeline 兩端的 queue
	// 斷線後 repo 會在下一次操作重撥，supervisor 重啟消費迴圈時拿到活的 channel
	rabbitURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port)
	rabbitRepo := database.NewReconnectingRabbitRepo(database.Connection{
		ConnectStr:    rabbitURL,
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval),
	})
	defer rabbitRepo.Close()

	for _, queue := range []string{domain.QueueVideoProcessing, domain.QueueVideoProcessed} {
		if err := rabbitRepo.DeclareQueue(queue); err != nil {
			log.Fatalf("Queue Declare [%s] failed: %v", queue, err)
		}
	}

	// 5. 建立 Kafka Writer，狀態 feed 是 best effort，失敗不擋服務啟動
	var statusFeed database.KafkaWriterRepo
	kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
	})
	if err != nil {
		logger.Log.Warn("Kafka Writer 建立失敗，狀態 feed 停用", zap.Error(err))
	} else {
		defer kafkaWriter.Close()
		statusFeed = kafkaWriter
	}

	// 6. 組裝 use case 與結果消費者
	notifier := app.NewStatusNotifier()
	uploadUC := app.NewUploadUseCase(videoRepo, sessionRepo, minioClient, rabbitRepo, notifier, cfg.SessionTTL*time.Minute)
	resultConsumer := app.NewResultConsumer(videoRepo, rabbitRepo, notifier, statusFeed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go retry.Forever(ctx, "result-consumer", resultConsumer.Run)

	// 7. 建立 Fiber 應用
	// chunk 上限 5MiB，body limit 需要預留 multipart 封裝的空間
	r := fiber.New(fiber.Config{
		BodyLimit: domain.ChunkSize + 1024*1024,
	})
	// 添加日志中间件
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.IngestServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	// 8. 設定 API 路由
	uploadHandler := handlers.NewUploadHandler(uploadUC)
	statusStream := handlers.NewStatusStreamHandler(uploadUC, notifier)
	router.RegisterRoutes(r, uploadHandler, statusStream)

	// 9. 啟動 API 服務
	if err := r.Listen(":" + cfg.Port); err != nil {
		logger.Log.Fatal("Server failed to start", zap.Error(err))
	}
}
