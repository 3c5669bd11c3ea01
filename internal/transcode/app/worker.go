package app

import (
	"context"
	"encoding/json"
	"fmt"

	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/pkg"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

var knownQualities = func() []string {
	out := make([]string, 0, len(domain.DefaultQualities))
	for _, q := range domain.DefaultQualities {
		out = append(out, string(q))
	}
	return out
}()

// Consumer 消費轉碼工作並回報結果
// worker 不碰資料庫，狀態轉移由 ingest 端的結果消費者持久化
type Consumer struct {
	queue      database.RabbitRepo
	transcoder Transcoder
}

// NewConsumer 建構 Consumer 實例
func NewConsumer(queue database.RabbitRepo, transcoder Transcoder) *Consumer {
	return &Consumer{
		queue:      queue,
		transcoder: transcoder,
	}
}

// Run 啟動轉碼工作消費迴圈，channel 斷線由上層 supervisor 重啟
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.queue.DeclareQueue(domain.QueueVideoProcessed); err != nil {
		return fmt.Errorf("宣告結果 queue 失敗: %w", err)
	}
	return c.queue.Consume(ctx, domain.QueueVideoProcessing, func(pattern string, data []byte) error {
		return c.handle(ctx, pattern, data)
	})
}

// handle 處理單則轉碼工作
// 轉碼失敗是資料不是錯誤：回報 failed 結果後照樣 ack；
// 回傳 error 只發生在結果發不出去的時候，讓訊息被丟棄而不是卡住佇列
func (c *Consumer) handle(ctx context.Context, pattern string, data []byte) error {
	if pattern != domain.PatternVideoUploaded {
		return fmt.Errorf("未知的 pattern [%s]", pattern)
	}

	var job domain.VideoUploadedEvent
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("解析轉碼工作訊息失敗: %w", err)
	}
	if job.VideoID == "" || job.RawObjectKey == "" {
		return fmt.Errorf("轉碼工作缺少必要欄位")
	}
	for _, q := range job.Qualities {
		if !pkg.Contains(knownQualities, string(q)) {
			return fmt.Errorf("轉碼工作帶有未知畫質: %s", q)
		}
	}

	logger.Log.Info("收到轉碼工作",
		zap.String("video_id", job.VideoID),
		zap.String("raw_object_key", job.RawObjectKey))

	result := domain.VideoProcessedEvent{
		VideoID:   job.VideoID,
		EpisodeID: job.EpisodeID,
	}

	masterKey, err := c.transcoder.Transcode(ctx, job.VideoID, job.RawObjectKey, job.Qualities)
	if err != nil {
		logger.Log.Error(fmt.Sprintf("轉碼失敗 VideoID: %s: %v", job.VideoID, err))
		result.Status = domain.VideoFailed
		result.Error = err.Error()
	} else {
		result.Status = domain.VideoReady
		result.MasterPlaylistKey = masterKey
	}

	// 先發結果再 ack，結果發布失敗時工作訊息不確認
	if err := c.queue.PublishEvent(domain.QueueVideoProcessed, domain.PatternVideoProcessed, result); err != nil {
		return fmt.Errorf("發布轉碼結果 [%s] 失敗: %w", job.VideoID, err)
	}

	logger.Log.Info("轉碼結果已回報",
		zap.String("video_id", job.VideoID),
		zap.String("status", string(result.Status)))
	return nil
}
