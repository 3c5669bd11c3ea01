package domain

const (
	//QueueVideoProcessing worker 消費的轉碼工作 queue
	QueueVideoProcessing = "video.processing"
	//QueueVideoProcessed ingest service 消費的轉碼結果 queue
	QueueVideoProcessed = "video.processed"

	//PatternVideoUploaded job 訊息的 pattern
	PatternVideoUploaded = "video.uploaded"
	//PatternVideoProcessed result 訊息的 pattern
	PatternVideoProcessed = "video.processed"

	//TopicVideoStatus kafka 狀態事件 feed 的 topic
	TopicVideoStatus = "video.status"
)

// VideoQuality 轉碼輸出畫質
type VideoQuality string

const (
	//Quality360p 360p output
	Quality360p VideoQuality = "360p"
	//Quality720p 720p output
	Quality720p VideoQuality = "720p"
	//Quality1080p 1080p output
	Quality1080p VideoQuality = "1080p"
)

// DefaultQualities complete 時預設要求的輸出畫質
var DefaultQualities = []VideoQuality{Quality360p, Quality720p, Quality1080p}

// VideoUploadedEvent 定義轉碼工作訊息
type VideoUploadedEvent struct {
	VideoID      string         `json:"videoId"`
	EpisodeID    string         `json:"episodeId"`
	RawObjectKey string         `json:"rawObjectKey"`
	Qualities    []VideoQuality `json:"qualities"`
}

// VideoProcessedEvent 定義轉碼結果訊息
// 轉碼失敗以資料表達（status=failed + error），不會是訊息層的錯誤
type VideoProcessedEvent struct {
	VideoID           string      `json:"videoId"`
	EpisodeID         string      `json:"episodeId"`
	Status            VideoStatus `json:"status"`
	MasterPlaylistKey string      `json:"masterPlaylistKey,omitempty"`
	Error             string      `json:"error,omitempty"`
}

// VideoStatusRecord kafka 狀態 feed 的記錄格式
type VideoStatusRecord struct {
	VideoID string      `json:"videoId"`
	Status  VideoStatus `json:"status"`
}
