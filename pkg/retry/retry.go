package retry

import (
	"context"
	"time"

	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	baseDelay = 1 * time.Second
	maxDelay  = 30 * time.Second

	// 執行超過這個時間視為曾經健康，重置回退間隔
	healthyRunTime = 1 * time.Minute
)

// Forever 以指數回退無上限重啟 fn，直到 ctx 結束。
// worker 與 result consumer 的消費迴圈都包在這層裡自我修復。
func Forever(ctx context.Context, name string, fn func(ctx context.Context) error) {
	delay := baseDelay

	for {
		start := time.Now()
		err := fn(ctx)

		if ctx.Err() != nil {
			logger.Log.Info("supervisor 停止", zap.String("name", name))
			return
		}

		if time.Since(start) >= healthyRunTime {
			delay = baseDelay
		}

		logger.Log.Warn("supervised loop 結束，準備重啟",
			zap.String("name", name),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
