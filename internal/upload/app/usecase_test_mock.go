package app

import (
	"context"
	"io"

	"video_ingest_service/internal/upload/domain"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
)

// MockVideoRepo Mock VideoRepo
type MockVideoRepo struct {
	mock.Mock
}

// AutoMigrate moke auto migrate
func (m *MockVideoRepo) AutoMigrate() error {
	args := m.Called()
	return args.Error(0)
}

// Create moke create video
func (m *MockVideoRepo) Create(video *domain.Video) error {
	args := m.Called(video)
	return args.Error(0)
}

// GetByID moke get video by id
func (m *MockVideoRepo) GetByID(id string) (*domain.Video, error) {
	args := m.Called(id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Video), args.Error(1)
	}
	return nil, args.Error(1)
}

// GetByEpisodeID moke get video by episode id
func (m *MockVideoRepo) GetByEpisodeID(episodeID string) (*domain.Video, error) {
	args := m.Called(episodeID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Video), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkProcessing moke mark processing
func (m *MockVideoRepo) MarkProcessing(id, rawObjectKey string) error {
	args := m.Called(id, rawObjectKey)
	return args.Error(0)
}

// ApplyResult moke apply result
func (m *MockVideoRepo) ApplyResult(id string, status domain.VideoStatus, masterPlaylistKey string) (bool, error) {
	args := m.Called(id, status, masterPlaylistKey)
	return args.Bool(0), args.Error(1)
}

// MockUploadSessionRepo Mock UploadSessionRepo
type MockUploadSessionRepo struct {
	mock.Mock
}

// Create moke create session
func (m *MockUploadSessionRepo) Create(ctx context.Context, session *domain.UploadSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

// Get moke get session
func (m *MockUploadSessionRepo) Get(ctx context.Context, uploadID string) (*domain.UploadSession, error) {
	args := m.Called(ctx, uploadID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.UploadSession), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkChunkReceived moke mark chunk received
func (m *MockUploadSessionRepo) MarkChunkReceived(ctx context.Context, uploadID string, index int) (bool, error) {
	args := m.Called(ctx, uploadID, index)
	return args.Bool(0), args.Error(1)
}

// IncrementReceived moke increment received
func (m *MockUploadSessionRepo) IncrementReceived(ctx context.Context, uploadID string) error {
	args := m.Called(ctx, uploadID)
	return args.Error(0)
}

// TryComplete moke try complete
func (m *MockUploadSessionRepo) TryComplete(ctx context.Context, uploadID string) (bool, error) {
	args := m.Called(ctx, uploadID)
	return args.Bool(0), args.Error(1)
}

// ReleaseComplete moke release complete
func (m *MockUploadSessionRepo) ReleaseComplete(ctx context.Context, uploadID string) error {
	args := m.Called(ctx, uploadID)
	return args.Error(0)
}

// MockMinIOClient Mock MinIOClientRepo
type MockMinIOClient struct {
	mock.Mock
}

// PutObject moke put object
func (m *MockMinIOClient) PutObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, objectName, reader, size, contentType)
	return args.Error(0)
}

// UploadFile moke upload file
func (m *MockMinIOClient) UploadFile(ctx context.Context, objectName, filePath, contentType string) error {
	args := m.Called(ctx, objectName, filePath, contentType)
	return args.Error(0)
}

// DownloadFile moke download file
func (m *MockMinIOClient) DownloadFile(ctx context.Context, objectName, destPath string) error {
	args := m.Called(ctx, objectName, destPath)
	return args.Error(0)
}

// ComposeObjects moke compose objects
func (m *MockMinIOClient) ComposeObjects(ctx context.Context, sourceKeys []string, targetKey string) error {
	args := m.Called(ctx, sourceKeys, targetKey)
	return args.Error(0)
}

// RemoveObjectsBatch moke remove objects
func (m *MockMinIOClient) RemoveObjectsBatch(ctx context.Context, keys []string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

// MockRabbitRepo Mock RabbitRepo
type MockRabbitRepo struct {
	mock.Mock
}

// DeclareQueue moke declare queue
func (m *MockRabbitRepo) DeclareQueue(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

// PublishEvent moke publish event
func (m *MockRabbitRepo) PublishEvent(queueName, pattern string, payload interface{}) error {
	args := m.Called(queueName, pattern, payload)
	return args.Error(0)
}

// Consume moke consume
func (m *MockRabbitRepo) Consume(ctx context.Context, queueName string, handler func(pattern string, data []byte) error) error {
	args := m.Called(ctx, queueName, handler)
	return args.Error(0)
}

// MockKafkaWriter Mock KafkaWriterRepo
type MockKafkaWriter struct {
	mock.Mock
}

// WriteMessages moke write messages
func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}
