package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/internal/upload/repository"
	"video_ingest_service/pkg/database"
	errprocess "video_ingest_service/pkg/err"
	"video_ingest_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UploadUseCase definition upload use case
type UploadUseCase interface {
	InitUpload(ctx context.Context, req domain.InitUploadReq) (domain.InitUploadRes, error)
	ReceiveChunk(ctx context.Context, uploadID string, index int, chunk io.Reader, size int64) (domain.ReceiveChunkRes, error)
	CompleteUpload(ctx context.Context, uploadID string) (domain.CompleteUploadRes, error)
	GetVideo(ctx context.Context, videoID string) (*domain.Video, error)
}

type uploadUseCase struct {
	videos     repository.VideoRepo
	sessions   repository.UploadSessionRepo
	store      database.MinIOClientRepo
	queue      database.RabbitRepo
	notifier   *StatusNotifier
	sessionTTL time.Duration
}

// NewUploadUseCase create UploadUseCase
// sessionTTL <= 0 時使用預設值
func NewUploadUseCase(
	videos repository.VideoRepo,
	sessions repository.UploadSessionRepo,
	store database.MinIOClientRepo,
	queue database.RabbitRepo,
	notifier *StatusNotifier,
	sessionTTL time.Duration,
) UploadUseCase {
	if sessionTTL <= 0 {
		sessionTTL = domain.SessionTTL
	}
	return &uploadUseCase{
		videos:     videos,
		sessions:   sessions,
		store:      store,
		queue:      queue,
		notifier:   notifier,
		sessionTTL: sessionTTL,
	}
}

// InitUpload 建立影片記錄與上傳 session
// 一個 episode 只能有一部影片，重複 init 回 Conflict
func (u *uploadUseCase) InitUpload(ctx context.Context, req domain.InitUploadReq) (domain.InitUploadRes, error) {
	if req.EpisodeID == "" {
		return domain.InitUploadRes{}, errprocess.SetKind(errprocess.KindInvalidArgument, "episode_id 不可為空")
	}
	if req.TotalChunks < 1 {
		return domain.InitUploadRes{}, errprocess.SetKind(errprocess.KindInvalidArgument,
			fmt.Sprintf("total_chunks 必須 >= 1，收到 %d", req.TotalChunks))
	}

	if _, err := u.videos.GetByEpisodeID(req.EpisodeID); err == nil {
		return domain.InitUploadRes{}, errprocess.SetKind(errprocess.KindConflict,
			fmt.Sprintf("episode [%s] 已有影片", req.EpisodeID))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.InitUploadRes{}, errprocess.Set(fmt.Sprintf("查詢 episode [%s] 影片失敗: %v", req.EpisodeID, err))
	}

	video := &domain.Video{
		ID:        uuid.NewString(),
		EpisodeID: req.EpisodeID,
		Status:    string(domain.VideoPending),
	}
	if err := u.videos.Create(video); err != nil {
		// unique constraint 擋掉同時 init 的競態
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.InitUploadRes{}, errprocess.SetKind(errprocess.KindConflict,
				fmt.Sprintf("episode [%s] 已有影片", req.EpisodeID))
		}
		return domain.InitUploadRes{}, errprocess.Set(fmt.Sprintf("建立影片記錄失敗: %v", err))
	}

	now := time.Now().UTC()
	session := &domain.UploadSession{
		ID:             uuid.NewString(),
		VideoID:        video.ID,
		EpisodeID:      req.EpisodeID,
		TotalChunks:    req.TotalChunks,
		ExpiresAt:      now.Add(u.sessionTTL),
		LastActivityAt: now,
	}
	if err := u.sessions.Create(ctx, session); err != nil {
		return domain.InitUploadRes{}, errprocess.Set(fmt.Sprintf("建立上傳 session 失敗: %v", err))
	}

	logger.Log.Info("上傳 session 建立",
		zap.String("upload_id", session.ID),
		zap.String("video_id", video.ID),
		zap.Int("total_chunks", req.TotalChunks))

	return domain.InitUploadRes{
		UploadID:  session.ID,
		ChunkSize: domain.ChunkSize,
	}, nil
}

// ReceiveChunk 寫入單個 chunk
// 同一個 index 重傳是冪等覆寫，received 計數只在首次收到時累加
func (u *uploadUseCase) ReceiveChunk(ctx context.Context, uploadID string, index int, chunk io.Reader, size int64) (domain.ReceiveChunkRes, error) {
	session, err := u.loadActiveSession(ctx, uploadID)
	if err != nil {
		return domain.ReceiveChunkRes{}, err
	}
	if session.Completed {
		return domain.ReceiveChunkRes{}, errprocess.SetKind(errprocess.KindConflict,
			fmt.Sprintf("session [%s] 已完成，不再接受 chunk", uploadID))
	}
	if index < 0 || index >= session.TotalChunks {
		return domain.ReceiveChunkRes{}, errprocess.SetKind(errprocess.KindInvalidArgument,
			fmt.Sprintf("chunk index %d 超出範圍 [0, %d)", index, session.TotalChunks))
	}

	// 先落地物件再記帳，寫入失敗時計數不動，client 重傳即可
	key := domain.TempChunkKey(uploadID, index)
	if err := u.store.PutObject(ctx, key, chunk, size, "application/octet-stream"); err != nil {
		return domain.ReceiveChunkRes{}, errprocess.SetKind(errprocess.KindUpstreamUnavailable,
			fmt.Sprintf("寫入 chunk [%s] 失敗: %v", key, err))
	}

	first, err := u.sessions.MarkChunkReceived(ctx, uploadID, index)
	if err != nil {
		return domain.ReceiveChunkRes{}, errprocess.Set(fmt.Sprintf("記錄 chunk %d 失敗: %v", index, err))
	}
	if first {
		if err := u.sessions.IncrementReceived(ctx, uploadID); err != nil {
			return domain.ReceiveChunkRes{}, errprocess.Set(fmt.Sprintf("累加 chunk 計數失敗: %v", err))
		}
	}

	return domain.ReceiveChunkRes{Index: index, Received: true}, nil
}

// CompleteUpload 合併所有 chunk、清掉暫存、標記 processing 並發出轉碼工作
// completed 旗標是原子搶佔，同一 session 只有一個 complete 能走到合併；
// 搶到旗標後的任何失敗都會釋放旗標讓 client 重試
func (u *uploadUseCase) CompleteUpload(ctx context.Context, uploadID string) (domain.CompleteUploadRes, error) {
	session, err := u.loadActiveSession(ctx, uploadID)
	if err != nil {
		return domain.CompleteUploadRes{}, err
	}
	if session.Completed {
		return domain.CompleteUploadRes{}, errprocess.SetKind(errprocess.KindConflict,
			fmt.Sprintf("session [%s] 已完成", uploadID))
	}
	if !session.CompleteEligible(time.Now().UTC()) {
		return domain.CompleteUploadRes{}, errprocess.SetKind(errprocess.KindFailedPrecondition,
			fmt.Sprintf("session [%s] chunk 未齊全 (%d/%d)", uploadID, session.ReceivedChunks, session.TotalChunks))
	}

	won, err := u.sessions.TryComplete(ctx, uploadID)
	if err != nil {
		return domain.CompleteUploadRes{}, errprocess.Set(fmt.Sprintf("搶佔 completed 旗標失敗: %v", err))
	}
	if !won {
		return domain.CompleteUploadRes{}, errprocess.SetKind(errprocess.KindConflict,
			fmt.Sprintf("session [%s] 已完成", uploadID))
	}

	if err := u.finishUpload(ctx, session); err != nil {
		if relErr := u.sessions.ReleaseComplete(ctx, uploadID); relErr != nil {
			logger.Log.Error(fmt.Sprintf("釋放 completed 旗標失敗 [%s]: %v", uploadID, relErr))
		}
		return domain.CompleteUploadRes{}, err
	}

	u.notifier.Publish(session.VideoID, domain.VideoProcessing)

	logger.Log.Info("上傳完成，已送出轉碼工作",
		zap.String("upload_id", uploadID),
		zap.String("video_id", session.VideoID))

	return domain.CompleteUploadRes{
		VideoID: session.VideoID,
		Status:  string(domain.VideoProcessing),
	}, nil
}

// finishUpload 搶到旗標後的合併流程
func (u *uploadUseCase) finishUpload(ctx context.Context, session *domain.UploadSession) error {
	chunkKeys := domain.TempChunkKeys(session.ID, session.TotalChunks)
	rawKey := domain.RawVideoKey(session.VideoID)

	if err := u.store.ComposeObjects(ctx, chunkKeys, rawKey); err != nil {
		return errprocess.SetKind(errprocess.KindUpstreamUnavailable,
			fmt.Sprintf("合併影片 [%s] 失敗: %v", session.VideoID, err))
	}

	// 暫存 chunk 清除失敗不致命，物件儲存端有 lifecycle 可兜底
	if err := u.store.RemoveObjectsBatch(ctx, chunkKeys); err != nil {
		logger.Log.Warn(fmt.Sprintf("清除暫存 chunk 失敗 [%s]: %v", session.ID, err))
	}

	if err := u.videos.MarkProcessing(session.VideoID, rawKey); err != nil {
		return errprocess.SetKind(errprocess.KindUpstreamUnavailable,
			fmt.Sprintf("更新影片 [%s] 狀態失敗: %v", session.VideoID, err))
	}

	event := domain.VideoUploadedEvent{
		VideoID:      session.VideoID,
		EpisodeID:    session.EpisodeID,
		RawObjectKey: rawKey,
		Qualities:    domain.DefaultQualities,
	}
	if err := u.queue.PublishEvent(domain.QueueVideoProcessing, domain.PatternVideoUploaded, event); err != nil {
		return errprocess.SetKind(errprocess.KindUpstreamUnavailable,
			fmt.Sprintf("發布轉碼工作 [%s] 失敗: %v", session.VideoID, err))
	}

	return nil
}

// GetVideo 查詢影片目前狀態
func (u *uploadUseCase) GetVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	video, err := u.videos.GetByID(videoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errprocess.SetKind(errprocess.KindNotFound, fmt.Sprintf("影片 [%s] 不存在", videoID))
		}
		return nil, errprocess.Set(fmt.Sprintf("查詢影片 [%s] 失敗: %v", videoID, err))
	}
	return video, nil
}

// loadActiveSession 載入 session 並做存在/過期檢查
// session 被 retention 清掉回 NotFound，還在但過期回 Gone
func (u *uploadUseCase) loadActiveSession(ctx context.Context, uploadID string) (*domain.UploadSession, error) {
	session, err := u.sessions.Get(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, errprocess.SetKind(errprocess.KindNotFound,
				fmt.Sprintf("上傳 session [%s] 不存在", uploadID))
		}
		return nil, errprocess.Set(fmt.Sprintf("讀取上傳 session [%s] 失敗: %v", uploadID, err))
	}
	if session.Expired(time.Now().UTC()) {
		return nil, errprocess.SetKind(errprocess.KindGone,
			fmt.Sprintf("上傳 session [%s] 已過期", uploadID))
	}
	return session, nil
}
