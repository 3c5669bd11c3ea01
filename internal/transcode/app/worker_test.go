package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	os.Exit(m.Run())
}

// MockRabbitRepo Mock RabbitRepo
type MockRabbitRepo struct {
	mock.Mock
}

// DeclareQueue moke declare queue
func (m *MockRabbitRepo) DeclareQueue(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

// PublishEvent moke publish event
func (m *MockRabbitRepo) PublishEvent(queueName, pattern string, payload interface{}) error {
	args := m.Called(queueName, pattern, payload)
	return args.Error(0)
}

// Consume moke consume
func (m *MockRabbitRepo) Consume(ctx context.Context, queueName string, handler func(pattern string, data []byte) error) error {
	args := m.Called(ctx, queueName, handler)
	return args.Error(0)
}

// MockTranscoder Mock Transcoder
type MockTranscoder struct {
	mock.Mock
}

// Transcode moke transcode
func (m *MockTranscoder) Transcode(ctx context.Context, videoID, rawObjectKey string, qualities []domain.VideoQuality) (string, error) {
	args := m.Called(ctx, videoID, rawObjectKey, qualities)
	return args.String(0), args.Error(1)
}

func marshalJob(t *testing.T, job domain.VideoUploadedEvent) []byte {
	t.Helper()
	data, err := json.Marshal(job)
	assert.NoError(t, err)
	return data
}

// 測試 Consumer.handle
func TestConsumer_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("轉碼成功回報 ready 結果", func(t *testing.T) {
		mockQueue := new(MockRabbitRepo)
		mockTranscoder := new(MockTranscoder)
		c := NewConsumer(mockQueue, mockTranscoder)

		job := domain.VideoUploadedEvent{
			VideoID:      uuid.NewString(),
			EpisodeID:    uuid.NewString(),
			RawObjectKey: "raw/video/original.mp4",
			Qualities:    domain.DefaultQualities,
		}
		masterKey := "processed/" + job.VideoID + "/master.m3u8"

		mockTranscoder.On("Transcode", ctx, job.VideoID, job.RawObjectKey, job.Qualities).Return(masterKey, nil)
		mockQueue.On("PublishEvent", domain.QueueVideoProcessed, domain.PatternVideoProcessed,
			mock.MatchedBy(func(e domain.VideoProcessedEvent) bool {
				return e.VideoID == job.VideoID && e.Status == domain.VideoReady && e.MasterPlaylistKey == masterKey
			})).Return(nil)

		err := c.handle(ctx, domain.PatternVideoUploaded, marshalJob(t, job))

		assert.NoError(t, err)
		mockTranscoder.AssertExpectations(t)
		mockQueue.AssertExpectations(t)
	})

	t.Run("轉碼失敗是資料不是錯誤，回報 failed 並照樣 ack", func(t *testing.T) {
		mockQueue := new(MockRabbitRepo)
		mockTranscoder := new(MockTranscoder)
		c := NewConsumer(mockQueue, mockTranscoder)

		job := domain.VideoUploadedEvent{
			VideoID:      uuid.NewString(),
			RawObjectKey: "raw/video/original.mp4",
		}

		mockTranscoder.On("Transcode", ctx, job.VideoID, job.RawObjectKey, mock.Anything).
			Return("", errors.New("ffmpeg exited with code 1"))
		mockQueue.On("PublishEvent", domain.QueueVideoProcessed, domain.PatternVideoProcessed,
			mock.MatchedBy(func(e domain.VideoProcessedEvent) bool {
				return e.VideoID == job.VideoID && e.Status == domain.VideoFailed && e.Error != ""
			})).Return(nil)

		err := c.handle(ctx, domain.PatternVideoUploaded, marshalJob(t, job))

		assert.NoError(t, err)
		mockQueue.AssertExpectations(t)
	})

	t.Run("結果發布失敗回傳錯誤，工作訊息不確認", func(t *testing.T) {
		mockQueue := new(MockRabbitRepo)
		mockTranscoder := new(MockTranscoder)
		c := NewConsumer(mockQueue, mockTranscoder)

		job := domain.VideoUploadedEvent{
			VideoID:      uuid.NewString(),
			RawObjectKey: "raw/video/original.mp4",
		}

		mockTranscoder.On("Transcode", ctx, job.VideoID, job.RawObjectKey, mock.Anything).Return("key", nil)
		mockQueue.On("PublishEvent", domain.QueueVideoProcessed, domain.PatternVideoProcessed, mock.Anything).
			Return(errors.New("rabbit down"))

		err := c.handle(ctx, domain.PatternVideoUploaded, marshalJob(t, job))

		assert.Error(t, err)
	})

	t.Run("未知 pattern 回傳錯誤", func(t *testing.T) {
		c := NewConsumer(new(MockRabbitRepo), new(MockTranscoder))

		err := c.handle(ctx, "video.unknown", []byte(`{}`))

		assert.Error(t, err)
	})

	t.Run("未知畫質回傳錯誤", func(t *testing.T) {
		c := NewConsumer(new(MockRabbitRepo), new(MockTranscoder))

		err := c.handle(ctx, domain.PatternVideoUploaded, marshalJob(t, domain.VideoUploadedEvent{
			VideoID:      uuid.NewString(),
			RawObjectKey: "raw/video/original.mp4",
			Qualities:    []domain.VideoQuality{"4320p"},
		}))

		assert.Error(t, err)
	})

	t.Run("缺少必要欄位回傳錯誤", func(t *testing.T) {
		c := NewConsumer(new(MockRabbitRepo), new(MockTranscoder))

		err := c.handle(ctx, domain.PatternVideoUploaded, marshalJob(t, domain.VideoUploadedEvent{}))

		assert.Error(t, err)
	})
}
