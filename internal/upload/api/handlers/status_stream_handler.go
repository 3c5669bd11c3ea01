package handlers

import (
	"context"
	"encoding/json"
	"time"

	"video_ingest_service/internal/upload/app"
	"video_ingest_service/internal/upload/domain"
	"video_ingest_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// StatusStreamHandler 推送單部影片的狀態變化
type StatusStreamHandler struct {
	UploadUC app.UploadUseCase
	Notifier *app.StatusNotifier
}

// NewStatusStreamHandler create StatusStreamHandler
func NewStatusStreamHandler(uploadUC app.UploadUseCase, notifier *app.StatusNotifier) *StatusStreamHandler {
	return &StatusStreamHandler{UploadUC: uploadUC, Notifier: notifier}
}

type statusMessage struct {
	VideoID string             `json:"videoId"`
	Status  domain.VideoStatus `json:"status"`
}

// HandleConnection websocket 連線進入點
// 先訂閱再讀取目前狀態，避免訂閱前發生的轉移漏掉；
// 進入終態即正常關閉連線
func (h *StatusStreamHandler) HandleConnection(conn *websocket.Conn) {
	videoID := conn.Params("id")

	ticker := time.NewTicker(30 * time.Second)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		logger.Log.Info("status stream close", zap.String("videoID", videoID))
		conn.Close()
		cancel()
	}()

	//server發出ping之後client連線正常會回pong
	//fiber會自動處理回傳pong,故需要SetPongHandler另外接出
	conn.SetPongHandler(func(appData string) error {
		return nil
	})

	updates, unsubscribe := h.Notifier.Subscribe(videoID)
	defer unsubscribe()

	// 訂閱之後才讀 DB，目前狀態一定會送到
	video, err := h.UploadUC.GetVideo(ctxClose, videoID)
	if err != nil {
		h.closeNormal(conn, "video not found")
		return
	}

	current := domain.VideoStatus(video.Status)
	if !h.send(conn, videoID, current) {
		return
	}
	if current.Terminal() {
		h.closeNormal(conn, string(current))
		return
	}

	// 讀取迴圈只為了偵測 client 斷線
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseNoStatusReceived,
				) {
					logger.Log.Errorf("status stream read error:", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			if !h.send(conn, videoID, status) {
				return
			}
			if status.Terminal() {
				h.closeNormal(conn, string(status))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				logger.Log.Errorf("status stream ping error:", err)
				return
			}
		case <-ctxClose.Done():
			return
		}
	}
}

func (h *StatusStreamHandler) send(conn *websocket.Conn, videoID string, status domain.VideoStatus) bool {
	b, _ := json.Marshal(statusMessage{VideoID: videoID, Status: status})
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Errorf("status stream write error:", err)
		return false
	}
	return true
}

func (h *StatusStreamHandler) closeNormal(conn *websocket.Conn, reason string) {
	if err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)); err != nil {
		logger.Log.Errorf("status stream close error:", err)
	}
}
