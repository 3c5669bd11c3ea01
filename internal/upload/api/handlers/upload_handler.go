package handlers

import (
	"strconv"

	"video_ingest_service/internal/upload/app"
	"video_ingest_service/internal/upload/domain"
	errprocess "video_ingest_service/pkg/err"

	"github.com/gofiber/fiber/v2"
)

// UploadHandler 定義分塊上傳處理器
type UploadHandler struct {
	UploadUC app.UploadUseCase
}

// NewUploadHandler create UploadHandler
func NewUploadHandler(uploadUC app.UploadUseCase) *UploadHandler {
	return &UploadHandler{UploadUC: uploadUC}
}

// InitUpload 建立上傳 session，回傳 upload id 與約定的 chunk 大小
func (h *UploadHandler) InitUpload(c *fiber.Ctx) error {
	var req domain.InitUploadReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "請求格式錯誤"})
	}

	res, err := h.UploadUC.InitUpload(c.Context(), req)
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// ReceiveChunk 接收單個 chunk，同 index 重傳為冪等覆寫
func (h *UploadHandler) ReceiveChunk(c *fiber.Ctx) error {
	uploadID := c.Params("uploadId")

	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "chunk index 必須是整數"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "未檢測到檔案"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "讀取檔案失敗"})
	}
	defer file.Close()

	res, err := h.UploadUC.ReceiveChunk(c.Context(), uploadID, index, file, fileHeader.Size)
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

// CompleteUpload 合併所有 chunk 並送出轉碼工作
func (h *UploadHandler) CompleteUpload(c *fiber.Ctx) error {
	uploadID := c.Params("uploadId")

	res, err := h.UploadUC.CompleteUpload(c.Context(), uploadID)
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

// GetVideo 查詢影片目前狀態
func (h *UploadHandler) GetVideo(c *fiber.Ctx) error {
	video, err := h.UploadUC.GetVideo(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"video_id":            video.ID,
		"episode_id":          video.EpisodeID,
		"status":              video.Status,
		"master_playlist_key": video.MasterPlaylistKey,
	})
}
