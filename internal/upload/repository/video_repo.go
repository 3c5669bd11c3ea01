package repository

import (
	"video_ingest_service/internal/upload/domain"

	"gorm.io/gorm"
)

// VideoRepo definition video repo
type VideoRepo interface {
	AutoMigrate() error
	Create(video *domain.Video) error
	GetByID(id string) (*domain.Video, error)
	GetByEpisodeID(episodeID string) (*domain.Video, error)
	MarkProcessing(id, rawObjectKey string) error
	ApplyResult(id string, status domain.VideoStatus, masterPlaylistKey string) (bool, error)
}

type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepo create VideoRepo
func NewVideoRepo(db *gorm.DB) VideoRepo {
	return &videoRepo{db: db}
}

// AutoMigrate 建立/更新 videos 資料表
func (r *videoRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Video{})
}

// Create 建立影片記錄
// episode_id 有 unique constraint，同一 episode 重複建立會回傳 gorm.ErrDuplicatedKey
func (r *videoRepo) Create(video *domain.Video) error {
	return r.db.Create(video).Error
}

// GetByID get Video by id
func (r *videoRepo) GetByID(id string) (*domain.Video, error) {
	var v domain.Video
	if err := r.db.First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// GetByEpisodeID get Video by episode id
func (r *videoRepo) GetByEpisodeID(episodeID string) (*domain.Video, error) {
	var v domain.Video
	if err := r.db.First(&v, "episode_id = ?", episodeID).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// MarkProcessing 上傳合併完成後把影片標成 processing 並寫入 raw object key
// 條件式更新：只允許從 pending 轉移，保證狀態機單向前進
func (r *videoRepo) MarkProcessing(id, rawObjectKey string) error {
	result := r.db.Model(&domain.Video{}).
		Where("id = ? AND status = ?", id, domain.VideoPending).
		Updates(map[string]interface{}{
			"status":         domain.VideoProcessing,
			"raw_object_key": rawObjectKey,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ApplyResult 套用轉碼結果的終態轉移（ready / failed）
// 條件式更新排除已終態的列：終態之後任何結果訊息都是無害的 no-op
// 回傳是否真的有套用
func (r *videoRepo) ApplyResult(id string, status domain.VideoStatus, masterPlaylistKey string) (bool, error) {
	updates := map[string]interface{}{
		"status": status,
	}
	if masterPlaylistKey != "" {
		updates["master_playlist_key"] = masterPlaylistKey
	}

	result := r.db.Model(&domain.Video{}).
		Where("id = ? AND status NOT IN ?", id, []domain.VideoStatus{domain.VideoReady, domain.VideoFailed}).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
