package router

import (
	"video_ingest_service/internal/upload/api/handlers"
	"video_ingest_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册上傳相關的路由
// 上傳協定是管理端操作，全部走 JWT + admin 檢查
func RegisterRoutes(r *fiber.App, uploadHandler *handlers.UploadHandler, statusStream *handlers.StatusStreamHandler) {
	r.Use(middlewares.JWTMiddleware())

	admin := r.Group("/upload", middlewares.RequireAdmin())
	admin.Post("/init", uploadHandler.InitUpload)
	admin.Post("/:uploadId/chunk/:index", uploadHandler.ReceiveChunk)
	admin.Post("/:uploadId/complete", uploadHandler.CompleteUpload)

	r.Get("/video/:id", uploadHandler.GetVideo)
	r.Get("/video/:id/status", websocket.New(func(c *websocket.Conn) {
		statusStream.HandleConnection(c)
	}))
}
