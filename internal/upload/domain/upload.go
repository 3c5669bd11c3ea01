package domain

import (
	"fmt"
	"time"
)

const (
	// ChunkSize 與 client 約定的固定 chunk 大小，client 依此切檔
	// 同時也是物件儲存 multipart 的最小 part 大小，除最後一個 chunk 外都必須滿足
	ChunkSize = 5 * 1024 * 1024

	// SessionTTL 上傳 session 的有效期限
	SessionTTL = 24 * time.Hour
)

// UploadSession 進行中的分塊上傳記錄
type UploadSession struct {
	ID             string    `json:"id"`
	VideoID        string    `json:"video_id"`
	EpisodeID      string    `json:"episode_id"`
	TotalChunks    int       `json:"total_chunks"`
	ReceivedChunks int       `json:"received_chunks"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Completed      bool      `json:"completed"`
}

// Expired 過期採 lazy 檢查，下一次操作才會發現 session 已死
func (s *UploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CompleteEligible 所有 chunk 都收到且尚未過期才能 complete
func (s *UploadSession) CompleteEligible(now time.Time) bool {
	return s.ReceivedChunks == s.TotalChunks && !s.Expired(now)
}

// TempChunkKey chunk 暫存物件 key
func TempChunkKey(uploadID string, index int) string {
	return fmt.Sprintf("temp/%s/chunk-%d", uploadID, index)
}

// TempChunkKeys 依 index 順序列出所有 chunk key，合併順序即上傳順序
func TempChunkKeys(uploadID string, totalChunks int) []string {
	keys := make([]string, totalChunks)
	for i := 0; i < totalChunks; i++ {
		keys[i] = TempChunkKey(uploadID, i)
	}
	return keys
}

// RawVideoKey 合併完成後原始影片的 object key
func RawVideoKey(videoID string) string {
	return fmt.Sprintf("raw/%s/original.mp4", videoID)
}

// InitUploadReq usecase init upload request
type InitUploadReq struct {
	EpisodeID   string `json:"episode_id"`
	TotalChunks int    `json:"total_chunks"`
}

// InitUploadRes usecase init upload response
type InitUploadRes struct {
	UploadID  string `json:"upload_id"`
	ChunkSize int    `json:"chunk_size"`
}

// ReceiveChunkRes usecase receive chunk response
type ReceiveChunkRes struct {
	Index    int  `json:"index"`
	Received bool `json:"received"`
}

// CompleteUploadRes usecase complete upload response
type CompleteUploadRes struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}
