package app

import (
	"sync"

	"video_ingest_service/internal/upload/domain"
)

// StatusNotifier process 內的狀態廣播 hub
// 上傳完成與轉碼結果都會發到這裡，status stream 的連線各自訂閱
type StatusNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan domain.VideoStatus
}

// NewStatusNotifier create StatusNotifier
func NewStatusNotifier() *StatusNotifier {
	return &StatusNotifier{
		subs: make(map[string]map[int]chan domain.VideoStatus),
	}
}

// Subscribe 訂閱某部影片的狀態變化，回傳 channel 與取消函式
// channel 有 buffer，取消後由 hub 負責關閉
func (n *StatusNotifier) Subscribe(videoID string) (<-chan domain.VideoStatus, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID

	ch := make(chan domain.VideoStatus, 8)
	if n.subs[videoID] == nil {
		n.subs[videoID] = make(map[int]chan domain.VideoStatus)
	}
	n.subs[videoID][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if subs, ok := n.subs[videoID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(n.subs, videoID)
			}
		}
	}
	return ch, cancel
}

// Publish 廣播狀態給所有訂閱者
// 不阻塞：訂閱者 buffer 滿了就丟，stream 端之後會從 DB 補上最終狀態
func (n *StatusNotifier) Publish(videoID string, status domain.VideoStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[videoID] {
		select {
		case ch <- status:
		default:
		}
	}
}
