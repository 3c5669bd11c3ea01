package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"
)

// Transcoder 定義轉碼器，實作可抽換
type Transcoder interface {
	Transcode(ctx context.Context, videoID, rawObjectKey string, qualities []domain.VideoQuality) (masterPlaylistKey string, err error)
}

// FFmpegTranscoder 以本機 ffmpeg 執行多畫質 HLS 轉碼
type FFmpegTranscoder struct {
	store  database.MinIOClientRepo
	tmpDir string
}

// NewFFmpegTranscoder create FFmpegTranscoder
func NewFFmpegTranscoder(store database.MinIOClientRepo, tmpDir string) *FFmpegTranscoder {
	if tmpDir == "" {
		tmpDir = "./tmp"
	}
	return &FFmpegTranscoder{store: store, tmpDir: tmpDir}
}

// Transcode 執行轉碼工作：
// 1. 從物件儲存下載原始影片檔
// 2. 每個畫質各轉一份 HLS variant，再產生 master playlist
// 3. 將所有輸出上傳到 processed/{videoID}/ 目錄
// 4. 清理本地暫存檔案
func (t *FFmpegTranscoder) Transcode(ctx context.Context, videoID, rawObjectKey string, qualities []domain.VideoQuality) (string, error) {
	if len(qualities) == 0 {
		qualities = domain.DefaultQualities
	}

	localInputPath := filepath.Join(t.tmpDir, fmt.Sprintf("%s_original.mp4", videoID))
	localOutputDir := filepath.Join(t.tmpDir, fmt.Sprintf("%s_processed", videoID))

	if err := os.MkdirAll(t.tmpDir, 0755); err != nil {
		return "", fmt.Errorf("建立暫存目錄失敗: %v", err)
	}

	defer func() {
		if err := os.Remove(localInputPath); err != nil {
			logger.Log.Warn(fmt.Sprintf("清理本地原始檔失敗: %v", err))
		}
		if err := os.RemoveAll(localOutputDir); err != nil {
			logger.Log.Warn(fmt.Sprintf("清理本地轉碼輸出目錄失敗: %v", err))
		}
	}()

	logger.Log.Info(fmt.Sprintf("下載原始影片，VideoID: %s, ObjectKey: %s", videoID, rawObjectKey))
	if err := t.store.DownloadFile(ctx, rawObjectKey, localInputPath); err != nil {
		return "", fmt.Errorf("下載原始影片失敗: %w", err)
	}

	for _, quality := range qualities {
		logger.Log.Info(fmt.Sprintf("開始轉碼影片 VideoID: %s 畫質: %s", videoID, quality))
		if err := transcodeVariantToHLS(localInputPath, localOutputDir, quality); err != nil {
			return "", fmt.Errorf("轉碼畫質 %s 失敗: %w", quality, err)
		}
	}

	if _, err := writeMasterPlaylist(localOutputDir, qualities); err != nil {
		return "", err
	}

	if err := t.uploadOutputs(ctx, videoID, localOutputDir); err != nil {
		return "", err
	}

	return fmt.Sprintf("processed/%s/master.m3u8", videoID), nil
}

// uploadOutputs 將轉碼輸出目錄整棵上傳到 processed/{videoID}/
func (t *FFmpegTranscoder) uploadOutputs(ctx context.Context, videoID, localOutputDir string) error {
	return filepath.Walk(localOutputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(localOutputDir, path)
		if err != nil {
			return err
		}
		objectName := fmt.Sprintf("processed/%s/%s", videoID, filepath.ToSlash(rel))
		logger.Log.Info(fmt.Sprintf("上傳轉碼結果檔案 %s 至 ObjectKey: %s", path, objectName))
		if err := t.store.UploadFile(ctx, objectName, path, getContentType(objectName)); err != nil {
			return fmt.Errorf("上傳轉碼結果失敗: %w", err)
		}
		return nil
	})
}
