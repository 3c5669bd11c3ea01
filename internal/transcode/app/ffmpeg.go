package app

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/pkg/logger"
)

// variantProfile 單一畫質的編碼參數
type variantProfile struct {
	Resolution string // ffmpeg scale 用，例如 "1280x720"
	Bandwidth  int    // master playlist 宣告的頻寬 (bps)
	Bitrate    string // 視訊碼率
}

var variantProfiles = map[domain.VideoQuality]variantProfile{
	domain.Quality360p:  {Resolution: "640x360", Bandwidth: 800_000, Bitrate: "800k"},
	domain.Quality720p:  {Resolution: "1280x720", Bandwidth: 2_800_000, Bitrate: "2800k"},
	domain.Quality1080p: {Resolution: "1920x1080", Bandwidth: 5_000_000, Bitrate: "5000k"},
}

// transcodeVariantToHLS 將 inputPath 轉成單一畫質的 HLS，輸出到 outputDir/{quality}/
func transcodeVariantToHLS(inputPath, outputDir string, quality domain.VideoQuality) error {
	profile, ok := variantProfiles[quality]
	if !ok {
		return fmt.Errorf("未知的畫質: %s", quality)
	}

	variantDir := filepath.Join(outputDir, string(quality))
	if err := os.MkdirAll(variantDir, 0755); err != nil {
		return fmt.Errorf("建立畫質輸出目錄失敗: %v", err)
	}

	cmdArgs := []string{
		"-i", inputPath,
		"-c:v", "libx264",
		"-b:v", profile.Bitrate,
		"-s", profile.Resolution,
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", "4",
		"-hls_list_size", "0",
		fmt.Sprintf("%s/index.m3u8", variantDir),
	}
	logger.Log.Infof("執行 FFmpeg HLS: ffmpeg", cmdArgs)
	cmd := exec.Command("ffmpeg", cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("FFmpeg HLS 錯誤: %v, output: %s", err, string(output))
	}
	return nil
}

// writeMasterPlaylist 產生 master playlist，列出所有畫質的 variant
func writeMasterPlaylist(outputDir string, qualities []domain.VideoQuality) (string, error) {
	content := "#EXTM3U\n#EXT-X-VERSION:3\n"
	for _, q := range qualities {
		profile := variantProfiles[q]
		content += fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n%s/index.m3u8\n",
			profile.Bandwidth, profile.Resolution, q)
	}

	path := filepath.Join(outputDir, "master.m3u8")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("寫入 master playlist 失敗: %v", err)
	}
	return path, nil
}

func getContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	default:
		return "application/octet-stream"
	}
}
