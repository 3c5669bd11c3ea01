package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/internal/upload/repository"
	errprocess "video_ingest_service/pkg/err"
	"video_ingest_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	os.Exit(m.Run())
}

func newTestUseCase() (*MockVideoRepo, *MockUploadSessionRepo, *MockMinIOClient, *MockRabbitRepo, UploadUseCase) {
	mockVideos := new(MockVideoRepo)
	mockSessions := new(MockUploadSessionRepo)
	mockStore := new(MockMinIOClient)
	mockQueue := new(MockRabbitRepo)
	uc := NewUploadUseCase(mockVideos, mockSessions, mockStore, mockQueue, NewStatusNotifier(), 0)
	return mockVideos, mockSessions, mockStore, mockQueue, uc
}

func activeSession(totalChunks, receivedChunks int) *domain.UploadSession {
	now := time.Now().UTC()
	return &domain.UploadSession{
		ID:             uuid.NewString(),
		VideoID:        uuid.NewString(),
		EpisodeID:      uuid.NewString(),
		TotalChunks:    totalChunks,
		ReceivedChunks: receivedChunks,
		ExpiresAt:      now.Add(domain.SessionTTL),
		LastActivityAt: now,
	}
}

// 測試 InitUpload
func TestUploadUseCase_InitUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("成功建立 session", func(t *testing.T) {
		mockVideos, mockSessions, _, _, uc := newTestUseCase()
		episodeID := uuid.NewString()

		mockVideos.On("GetByEpisodeID", episodeID).Return(nil, gorm.ErrRecordNotFound)
		mockVideos.On("Create", mock.Anything).Return(nil)
		mockSessions.On("Create", ctx, mock.Anything).Return(nil)

		res, err := uc.InitUpload(ctx, domain.InitUploadReq{EpisodeID: episodeID, TotalChunks: 10})

		assert.NoError(t, err)
		assert.NotEmpty(t, res.UploadID)
		assert.Equal(t, domain.ChunkSize, res.ChunkSize)
		mockVideos.AssertExpectations(t)
		mockSessions.AssertExpectations(t)
	})

	t.Run("episode 已有影片回傳 Conflict", func(t *testing.T) {
		mockVideos, _, _, _, uc := newTestUseCase()
		episodeID := uuid.NewString()

		mockVideos.On("GetByEpisodeID", episodeID).Return(&domain.Video{ID: uuid.NewString()}, nil)

		_, err := uc.InitUpload(ctx, domain.InitUploadReq{EpisodeID: episodeID, TotalChunks: 10})

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindConflict, errprocess.KindOf(err))
	})

	t.Run("同時 init 撞上 unique constraint 回傳 Conflict", func(t *testing.T) {
		mockVideos, _, _, _, uc := newTestUseCase()
		episodeID := uuid.NewString()

		mockVideos.On("GetByEpisodeID", episodeID).Return(nil, gorm.ErrRecordNotFound)
		mockVideos.On("Create", mock.Anything).Return(gorm.ErrDuplicatedKey)

		_, err := uc.InitUpload(ctx, domain.InitUploadReq{EpisodeID: episodeID, TotalChunks: 10})

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindConflict, errprocess.KindOf(err))
	})

	t.Run("total_chunks 非法回傳 InvalidArgument", func(t *testing.T) {
		_, _, _, _, uc := newTestUseCase()

		_, err := uc.InitUpload(ctx, domain.InitUploadReq{EpisodeID: uuid.NewString(), TotalChunks: 0})

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindInvalidArgument, errprocess.KindOf(err))
	})

	t.Run("設定檔的 session TTL 反映在過期時間", func(t *testing.T) {
		mockVideos := new(MockVideoRepo)
		mockSessions := new(MockUploadSessionRepo)
		ttl := 2 * time.Hour
		uc := NewUploadUseCase(mockVideos, mockSessions, new(MockMinIOClient), new(MockRabbitRepo), NewStatusNotifier(), ttl)
		episodeID := uuid.NewString()

		mockVideos.On("GetByEpisodeID", episodeID).Return(nil, gorm.ErrRecordNotFound)
		mockVideos.On("Create", mock.Anything).Return(nil)
		mockSessions.On("Create", ctx, mock.MatchedBy(func(s *domain.UploadSession) bool {
			remaining := time.Until(s.ExpiresAt)
			return remaining > ttl-time.Minute && remaining <= ttl
		})).Return(nil)

		_, err := uc.InitUpload(ctx, domain.InitUploadReq{EpisodeID: episodeID, TotalChunks: 3})

		assert.NoError(t, err)
		mockSessions.AssertExpectations(t)
	})
}

// 測試 ReceiveChunk
func TestUploadUseCase_ReceiveChunk(t *testing.T) {
	ctx := context.Background()
	chunk := bytes.NewReader([]byte("chunk data"))

	t.Run("首次收到 chunk 會累加計數", func(t *testing.T) {
		_, mockSessions, mockStore, _, uc := newTestUseCase()
		session := activeSession(10, 0)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)
		mockStore.On("PutObject", ctx, domain.TempChunkKey(session.ID, 3), chunk, int64(10), "application/octet-stream").Return(nil)
		mockSessions.On("MarkChunkReceived", ctx, session.ID, 3).Return(true, nil)
		mockSessions.On("IncrementReceived", ctx, session.ID).Return(nil)

		res, err := uc.ReceiveChunk(ctx, session.ID, 3, chunk, 10)

		assert.NoError(t, err)
		assert.Equal(t, 3, res.Index)
		assert.True(t, res.Received)
		mockSessions.AssertExpectations(t)
		mockStore.AssertExpectations(t)
	})

	t.Run("重送同一個 chunk 是冪等覆寫不重複計數", func(t *testing.T) {
		_, mockSessions, mockStore, _, uc := newTestUseCase()
		session := activeSession(10, 5)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)
		mockStore.On("PutObject", ctx, domain.TempChunkKey(session.ID, 3), chunk, int64(10), "application/octet-stream").Return(nil)
		mockSessions.On("MarkChunkReceived", ctx, session.ID, 3).Return(false, nil)

		_, err := uc.ReceiveChunk(ctx, session.ID, 3, chunk, 10)

		assert.NoError(t, err)
		mockSessions.AssertNotCalled(t, "IncrementReceived", ctx, session.ID)
	})

	t.Run("session 不存在回傳 NotFound", func(t *testing.T) {
		_, mockSessions, _, _, uc := newTestUseCase()
		uploadID := uuid.NewString()

		mockSessions.On("Get", ctx, uploadID).Return(nil, repository.ErrSessionNotFound)

		_, err := uc.ReceiveChunk(ctx, uploadID, 0, chunk, 10)

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindNotFound, errprocess.KindOf(err))
	})

	t.Run("session 過期回傳 Gone", func(t *testing.T) {
		_, mockSessions, _, _, uc := newTestUseCase()
		session := activeSession(10, 0)
		session.ExpiresAt = time.Now().UTC().Add(-time.Hour)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)

		_, err := uc.ReceiveChunk(ctx, session.ID, 0, chunk, 10)

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindGone, errprocess.KindOf(err))
	})

	t.Run("index 超出範圍回傳 InvalidArgument", func(t *testing.T) {
		_, mockSessions, _, _, uc := newTestUseCase()
		session := activeSession(10, 0)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)

		for _, index := range []int{-1, 10, 99} {
			_, err := uc.ReceiveChunk(ctx, session.ID, index, chunk, 10)
			assert.Error(t, err)
			assert.Equal(t, errprocess.KindInvalidArgument, errprocess.KindOf(err), fmt.Sprintf("index=%d", index))
		}
	})

	t.Run("邊界 index 0 與 total-1 合法", func(t *testing.T) {
		_, mockSessions, mockStore, _, uc := newTestUseCase()
		session := activeSession(10, 0)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)
		mockStore.On("PutObject", ctx, mock.Anything, chunk, int64(10), "application/octet-stream").Return(nil)
		mockSessions.On("MarkChunkReceived", ctx, session.ID, mock.Anything).Return(true, nil)
		mockSessions.On("IncrementReceived", ctx, session.ID).Return(nil)

		for _, index := range []int{0, 9} {
			_, err := uc.ReceiveChunk(ctx, session.ID, index, chunk, 10)
			assert.NoError(t, err)
		}
	})

	t.Run("已完成的 session 回傳 Conflict", func(t *testing.T) {
		_, mockSessions, _, _, uc := newTestUseCase()
		session := activeSession(10, 10)
		session.Completed = true

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)

		_, err := uc.ReceiveChunk(ctx, session.ID, 0, chunk, 10)

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindConflict, errprocess.KindOf(err))
	})
}

// 測試 CompleteUpload
func TestUploadUseCase_CompleteUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("成功合併並送出轉碼工作", func(t *testing.T) {
		mockVideos, mockSessions, mockStore, mockQueue, uc := newTestUseCase()
		session := activeSession(3, 3)
		chunkKeys := domain.TempChunkKeys(session.ID, 3)
		rawKey := domain.RawVideoKey(session.VideoID)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)
		mockSessions.On("TryComplete", ctx, session.ID).Return(true, nil)
		mockStore.On("ComposeObjects", ctx, chunkKeys, rawKey).Return(nil)
		mockStore.On("RemoveObjectsBatch", ctx, chunkKeys).Return(nil)
		mockVideos.On("MarkProcessing", session.VideoID, rawKey).Return(nil)
		mockQueue.On("PublishEvent", domain.QueueVideoProcessing, domain.PatternVideoUploaded, mock.MatchedBy(func(e domain.VideoUploadedEvent) bool {
			return e.VideoID == session.VideoID && e.RawObjectKey == rawKey && len(e.Qualities) == 3
		})).Return(nil)

		res, err := uc.CompleteUpload(ctx, session.ID)

		assert.NoError(t, err)
		assert.Equal(t, session.VideoID, res.VideoID)
		assert.Equal(t, string(domain.VideoProcessing), res.Status)
		mockVideos.AssertExpectations(t)
		mockStore.AssertExpectations(t)
		mockQueue.AssertExpectations(t)
	})

	t.Run("chunk 未齊全回傳 FailedPrecondition", func(t *testing.T) {
		_, mockSessions, _, _, uc := newTestUseCase()
		session := activeSession(10, 7)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)

		_, err := uc.CompleteUpload(ctx, session.ID)

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindFailedPrecondition, errprocess.KindOf(err))
	})

	t.Run("重複 complete 回傳 Conflict", func(t *testing.T) {
		_, mockSessions, _, _, uc := newTestUseCase()
		session := activeSession(3, 3)
		session.Completed = true

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)

		_, err := uc.CompleteUpload(ctx, session.ID)

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindConflict, errprocess.KindOf(err))
	})

	t.Run("旗標被搶走回傳 Conflict", func(t *testing.T) {
		_, mockSessions, _, _, uc := newTestUseCase()
		session := activeSession(3, 3)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)
		mockSessions.On("TryComplete", ctx, session.ID).Return(false, nil)

		_, err := uc.CompleteUpload(ctx, session.ID)

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindConflict, errprocess.KindOf(err))
	})

	t.Run("合併失敗會釋放旗標", func(t *testing.T) {
		_, mockSessions, mockStore, _, uc := newTestUseCase()
		session := activeSession(3, 3)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)
		mockSessions.On("TryComplete", ctx, session.ID).Return(true, nil)
		mockStore.On("ComposeObjects", ctx, mock.Anything, mock.Anything).Return(errors.New("minio down"))
		mockSessions.On("ReleaseComplete", ctx, session.ID).Return(nil)

		_, err := uc.CompleteUpload(ctx, session.ID)

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindUpstreamUnavailable, errprocess.KindOf(err))
		mockSessions.AssertCalled(t, "ReleaseComplete", ctx, session.ID)
	})

	t.Run("發布工作失敗會釋放旗標", func(t *testing.T) {
		mockVideos, mockSessions, mockStore, mockQueue, uc := newTestUseCase()
		session := activeSession(3, 3)
		rawKey := domain.RawVideoKey(session.VideoID)

		mockSessions.On("Get", ctx, session.ID).Return(session, nil)
		mockSessions.On("TryComplete", ctx, session.ID).Return(true, nil)
		mockStore.On("ComposeObjects", ctx, mock.Anything, mock.Anything).Return(nil)
		mockStore.On("RemoveObjectsBatch", ctx, mock.Anything).Return(nil)
		mockVideos.On("MarkProcessing", session.VideoID, rawKey).Return(nil)
		mockQueue.On("PublishEvent", domain.QueueVideoProcessing, domain.PatternVideoUploaded, mock.Anything).Return(errors.New("rabbit down"))
		mockSessions.On("ReleaseComplete", ctx, session.ID).Return(nil)

		_, err := uc.CompleteUpload(ctx, session.ID)

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindUpstreamUnavailable, errprocess.KindOf(err))
		mockSessions.AssertCalled(t, "ReleaseComplete", ctx, session.ID)
	})
}

// 測試 GetVideo
func TestUploadUseCase_GetVideo(t *testing.T) {
	ctx := context.Background()

	t.Run("找不到影片回傳 NotFound", func(t *testing.T) {
		mockVideos, _, _, _, uc := newTestUseCase()
		videoID := uuid.NewString()

		mockVideos.On("GetByID", videoID).Return(nil, gorm.ErrRecordNotFound)

		_, err := uc.GetVideo(ctx, videoID)

		assert.Error(t, err)
		assert.Equal(t, errprocess.KindNotFound, errprocess.KindOf(err))
	})
}
