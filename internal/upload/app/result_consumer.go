package app

import (
	"context"
	"encoding/json"
	"fmt"

	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/internal/upload/repository"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ResultConsumer 消費轉碼結果並套用狀態轉移
// 終態轉移由 ingest 這端持久化，worker 只負責回報結果
type ResultConsumer struct {
	videos   repository.VideoRepo
	queue    database.RabbitRepo
	notifier *StatusNotifier
	feed     database.KafkaWriterRepo
}

// NewResultConsumer create ResultConsumer
func NewResultConsumer(
	videos repository.VideoRepo,
	queue database.RabbitRepo,
	notifier *StatusNotifier,
	feed database.KafkaWriterRepo,
) *ResultConsumer {
	return &ResultConsumer{
		videos:   videos,
		queue:    queue,
		notifier: notifier,
		feed:     feed,
	}
}

// Run 啟動結果消費迴圈，channel 斷線由上層 supervisor 重啟
func (c *ResultConsumer) Run(ctx context.Context) error {
	return c.queue.Consume(ctx, domain.QueueVideoProcessed, c.handle)
}

func (c *ResultConsumer) handle(pattern string, data []byte) error {
	if pattern != domain.PatternVideoProcessed {
		return fmt.Errorf("未知的 pattern [%s]", pattern)
	}

	var event domain.VideoProcessedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("解析轉碼結果失敗: %w", err)
	}
	if event.VideoID == "" {
		return fmt.Errorf("轉碼結果缺少 videoId")
	}
	if event.Status != domain.VideoReady && event.Status != domain.VideoFailed {
		return fmt.Errorf("轉碼結果狀態不合法: %s", event.Status)
	}

	applied, err := c.videos.ApplyResult(event.VideoID, event.Status, event.MasterPlaylistKey)
	if err != nil {
		return fmt.Errorf("套用轉碼結果 [%s] 失敗: %w", event.VideoID, err)
	}
	if !applied {
		// 已是終態的重複訊息，無害，照樣 ack
		logger.Log.Warn("轉碼結果未套用，影片已在終態",
			zap.String("video_id", event.VideoID),
			zap.String("status", string(event.Status)))
		return nil
	}

	if event.Status == domain.VideoFailed {
		logger.Log.Error(fmt.Sprintf("影片 [%s] 轉碼失敗: %s", event.VideoID, event.Error))
	} else {
		logger.Log.Info("影片轉碼完成",
			zap.String("video_id", event.VideoID),
			zap.String("master_playlist_key", event.MasterPlaylistKey))
	}

	c.notifier.Publish(event.VideoID, event.Status)
	c.appendStatusFeed(event.VideoID, event.Status)

	return nil
}

// appendStatusFeed 把狀態事件補到 kafka feed，best effort
// feed 落後不影響狀態機，失敗只記 log
func (c *ResultConsumer) appendStatusFeed(videoID string, status domain.VideoStatus) {
	if c.feed == nil {
		return
	}

	record, err := json.Marshal(domain.VideoStatusRecord{VideoID: videoID, Status: status})
	if err != nil {
		logger.Log.Warn(fmt.Sprintf("序列化狀態事件失敗 [%s]: %v", videoID, err))
		return
	}

	if err := c.feed.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(videoID),
		Value: record,
	}); err != nil {
		logger.Log.Warn(fmt.Sprintf("寫入狀態 feed 失敗 [%s]: %v", videoID, err))
	}
}
