package domain

import "time"

// VideoStatus definition video status
type VideoStatus string

const (
	//VideoPending video status is pending
	VideoPending VideoStatus = "pending"
	//VideoProcessing video status is processing
	VideoProcessing VideoStatus = "processing"
	//VideoReady video status is ready
	VideoReady VideoStatus = "ready"
	//VideoFailed video status is failed
	VideoFailed VideoStatus = "failed"
)

// Terminal ready/failed 為終態，之後不再轉移
func (s VideoStatus) Terminal() bool {
	return s == VideoReady || s == VideoFailed
}

// Video 定義影片模型，一個 episode 只會有一部影片
type Video struct {
	ID                string `gorm:"primaryKey;type:uuid"`
	EpisodeID         string `gorm:"type:uuid;uniqueIndex;not null"`
	Status            string `gorm:"not null;default:pending"`
	RawObjectKey      string // 合併完成後的原始檔 object key，只會寫入一次
	MasterPlaylistKey string // 轉碼成功才會寫入
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
