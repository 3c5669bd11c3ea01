package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"video_ingest_service/internal/upload/domain"

	"github.com/go-redis/redis/v8"
)

// ErrSessionNotFound session 不存在（或已被 retention 清掉）
var ErrSessionNotFound = errors.New("upload session not found")

// retentionTTL key 保留時間取 session 剩餘壽命的兩倍：
// 過期但還沒被清掉的 session 會回 Gone，被清掉之後才是 NotFound
func retentionTTL(expiresAt time.Time) time.Duration {
	ttl := 2 * time.Until(expiresAt)
	if ttl <= 0 {
		ttl = 2 * domain.SessionTTL
	}
	return ttl
}

// UploadSessionRepo definition upload session store
type UploadSessionRepo interface {
	Create(ctx context.Context, session *domain.UploadSession) error
	Get(ctx context.Context, uploadID string) (*domain.UploadSession, error)
	MarkChunkReceived(ctx context.Context, uploadID string, index int) (bool, error)
	IncrementReceived(ctx context.Context, uploadID string) error
	TryComplete(ctx context.Context, uploadID string) (bool, error)
	ReleaseComplete(ctx context.Context, uploadID string) error
}

type uploadSessionRepo struct {
	client *redis.Client
}

// NewUploadSessionRepo create UploadSessionRepo
func NewUploadSessionRepo(client *redis.Client) UploadSessionRepo {
	return &uploadSessionRepo{client: client}
}

func sessionKey(uploadID string) string {
	return "upload:" + uploadID
}

func chunkSetKey(uploadID string) string {
	return "upload:" + uploadID + ":chunks"
}

// Create 建立 session hash 並設定保留期限
func (r *uploadSessionRepo) Create(ctx context.Context, s *domain.UploadSession) error {
	key := sessionKey(s.ID)

	if err := r.client.HSet(ctx, key,
		"id", s.ID,
		"video_id", s.VideoID,
		"episode_id", s.EpisodeID,
		"total_chunks", s.TotalChunks,
		"received_chunks", s.ReceivedChunks,
		"expires_at", s.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"last_activity_at", s.LastActivityAt.UTC().Format(time.RFC3339Nano),
	).Err(); err != nil {
		return fmt.Errorf("建立 upload session 失敗: %w", err)
	}

	return r.client.Expire(ctx, key, retentionTTL(s.ExpiresAt)).Err()
}

// Get 讀取 session，不存在回傳 ErrSessionNotFound
func (r *uploadSessionRepo) Get(ctx context.Context, uploadID string) (*domain.UploadSession, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(uploadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("讀取 upload session 失敗: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	totalChunks, err := strconv.Atoi(fields["total_chunks"])
	if err != nil {
		return nil, fmt.Errorf("解析 total_chunks 失敗: %w", err)
	}
	receivedChunks, err := strconv.Atoi(fields["received_chunks"])
	if err != nil {
		return nil, fmt.Errorf("解析 received_chunks 失敗: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("解析 expires_at 失敗: %w", err)
	}
	lastActivityAt, err := time.Parse(time.RFC3339Nano, fields["last_activity_at"])
	if err != nil {
		return nil, fmt.Errorf("解析 last_activity_at 失敗: %w", err)
	}

	return &domain.UploadSession{
		ID:             fields["id"],
		VideoID:        fields["video_id"],
		EpisodeID:      fields["episode_id"],
		TotalChunks:    totalChunks,
		ReceivedChunks: receivedChunks,
		ExpiresAt:      expiresAt,
		LastActivityAt: lastActivityAt,
		Completed:      fields["completed"] == "1",
	}, nil
}

// MarkChunkReceived 記錄 chunk index 已收到
// SADD 是原子的首次判斷：回傳 true 代表這個 index 第一次出現，
// 重送同一個 index 回傳 false，呼叫端不得重複累加計數
func (r *uploadSessionRepo) MarkChunkReceived(ctx context.Context, uploadID string, index int) (bool, error) {
	key := chunkSetKey(uploadID)
	added, err := r.client.SAdd(ctx, key, index).Result()
	if err != nil {
		return false, fmt.Errorf("記錄 chunk 失敗: %w", err)
	}
	// chunk set 與 session hash 同壽命
	ttl, err := r.client.TTL(ctx, sessionKey(uploadID)).Result()
	if err != nil {
		return false, fmt.Errorf("讀取 session TTL 失敗: %w", err)
	}
	if ttl > 0 {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return false, fmt.Errorf("設定 chunk set TTL 失敗: %w", err)
		}
	}
	return added == 1, nil
}

// IncrementReceived 首次收到某個 index 時累加計數並更新活動時間
func (r *uploadSessionRepo) IncrementReceived(ctx context.Context, uploadID string) error {
	key := sessionKey(uploadID)
	if err := r.client.HIncrBy(ctx, key, "received_chunks", 1).Err(); err != nil {
		return fmt.Errorf("累加 received_chunks 失敗: %w", err)
	}
	return r.client.HSet(ctx, key, "last_activity_at", time.Now().UTC().Format(time.RFC3339Nano)).Err()
}

// TryComplete 單向 completed 旗標的原子 check-and-set
// 回傳 false 代表已有人完成（或正在完成）這個 session
func (r *uploadSessionRepo) TryComplete(ctx context.Context, uploadID string) (bool, error) {
	ok, err := r.client.HSetNX(ctx, sessionKey(uploadID), "completed", "1").Result()
	if err != nil {
		return false, fmt.Errorf("設定 completed 旗標失敗: %w", err)
	}
	return ok, nil
}

// ReleaseComplete complete 中途失敗時釋放旗標，讓 client 可以重試
func (r *uploadSessionRepo) ReleaseComplete(ctx context.Context, uploadID string) error {
	return r.client.HDel(ctx, sessionKey(uploadID), "completed").Err()
}
