package database

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

// MinPartSize 物件儲存 multipart 的最小 part 大小，除最後一個 part 外都必須滿足
const MinPartSize = 5 * 1024 * 1024

// MinIOEndpoint save minio endpoint
var MinIOEndpoint string

// MinIOClientRepo definition minio client repo
type MinIOClientRepo interface {
	PutObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	UploadFile(ctx context.Context, objectName, filePath, contentType string) error
	DownloadFile(ctx context.Context, objectName, destPath string) error
	ComposeObjects(ctx context.Context, sourceKeys []string, targetKey string) error
	RemoveObjectsBatch(ctx context.Context, keys []string) error
}

// MinIOClient definition minio client
type MinIOClient struct {
	Client     *minio.Client
	BucketName string
}

// NewMinIOConnection create a new minio connection have retry
func NewMinIOConnection(d MinIOConnection) (*MinIOClient, error) {
	var mc *MinIOClient
	var err error

	for i := 1; i <= d.RetryCount; i++ {
		mc, err = NewMinioClient(d.Endpoint, d.User, d.Password, d.BucketName, d.UseSSL)
		if err == nil {
			MinIOEndpoint = d.Endpoint
			log.Printf("minIO[%s] 連線成功 (嘗試 %d 次)", d.Endpoint, i)
			return mc, nil
		}

		log.Printf("minIO[%s] 連線失敗 (嘗試 %d/%d): %v", d.Endpoint, i, d.RetryCount, err)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return mc, err
}

// NewMinioClient create a new minio
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOClient, error) {
	minioClient, err := minio.New(endpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
			Secure: useSSL,
		})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 失敗: %v", err)
	}

	ctx := context.Background()
	// 檢查 bucket 是否存在
	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("檢查 bucket [%s] 失敗: %v", bucketName, err)
	}

	// 如果 bucket 不存在，嘗試建立
	if !exists {
		if err = minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("建立 bucket [%s] 失敗: %v", bucketName, err)
		}
		log.Printf("Bucket [%s] 建立成功", bucketName)
	} else {
		log.Printf("Bucket [%s] 已存在", bucketName)
	}

	return &MinIOClient{
		Client:     minioClient,
		BucketName: bucketName,
	}, nil
}

// PutObject 直接寫入串流資料，chunk 上傳用（同 key 重傳為冪等覆寫）
func (m *MinIOClient) PutObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.BucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// UploadFile minio upload file func
func (m *MinIOClient) UploadFile(ctx context.Context, objectName, filePath, contentType string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("開啟檔案失敗: %v", err)
	}
	defer file.Close()

	_, err = m.Client.PutObject(ctx, m.BucketName, objectName, file, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// DownloadFile minio download file func
func (m *MinIOClient) DownloadFile(ctx context.Context, objectName, destPath string) error {
	obj, err := m.Client.GetObject(ctx, m.BucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("取得物件失敗: %v", err)
	}
	defer obj.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("建立檔案失敗: %v", err)
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, obj)
	return err
}

// ComposeObjects 以 multipart copy 將多個既有物件合併成單一物件
// part 編號沿用來源的順序（順序決定重組結果），所有 part 複製完成才 complete；
// 任何一步失敗都要 abort multipart，不允許殘留半成品佔用儲存空間。
// 除最後一個來源外，每個來源物件都必須滿足 MinPartSize。
func (m *MinIOClient) ComposeObjects(ctx context.Context, sourceKeys []string, targetKey string) error {
	core := minio.Core{Client: m.Client}

	uploadID, err := core.NewMultipartUpload(ctx, m.BucketName, targetKey, minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return fmt.Errorf("建立 multipart upload [%s] 失敗: %w", targetKey, err)
	}

	abort := func() {
		if abortErr := core.AbortMultipartUpload(context.Background(), m.BucketName, targetKey, uploadID); abortErr != nil {
			log.Printf("abort multipart upload [%s] 失敗: %v", targetKey, abortErr)
		}
	}

	// 平行複製每個來源物件為一個 part
	parts := make([]minio.CompletePart, len(sourceKeys))
	g, gctx := errgroup.WithContext(ctx)
	for i, sourceKey := range sourceKeys {
		i, sourceKey := i, sourceKey
		g.Go(func() error {
			info, err := m.Client.StatObject(gctx, m.BucketName, sourceKey, minio.StatObjectOptions{})
			if err != nil {
				return fmt.Errorf("來源物件 [%s] 不存在: %w", sourceKey, err)
			}
			part, err := core.CopyObjectPart(gctx, m.BucketName, sourceKey, m.BucketName, targetKey,
				uploadID, i+1, 0, info.Size, nil)
			if err != nil {
				return fmt.Errorf("複製 part %d [%s] 失敗: %w", i+1, sourceKey, err)
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		abort()
		return err
	}

	if _, err := core.CompleteMultipartUpload(ctx, m.BucketName, targetKey, uploadID, parts, minio.PutObjectOptions{}); err != nil {
		abort()
		return fmt.Errorf("complete multipart upload [%s] 失敗: %w", targetKey, err)
	}

	return nil
}

// RemoveObjectsBatch 批次刪除物件
func (m *MinIOClient) RemoveObjectsBatch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	for rErr := range m.Client.RemoveObjects(ctx, m.BucketName, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			return fmt.Errorf("刪除物件 [%s] 失敗: %w", rErr.ObjectName, rErr.Err)
		}
	}
	return nil
}
