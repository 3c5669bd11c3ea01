package errprocess

import (
	"errors"
	"net/http"

	"video_ingest_service/pkg/logger"
)

// Kind 上傳協定的錯誤分類
type Kind int

const (
	// KindInternal unclassified failure
	KindInternal Kind = iota
	// KindNotFound unknown session/video
	KindNotFound
	// KindGone session expired
	KindGone
	// KindInvalidArgument bad chunk index or malformed request
	KindInvalidArgument
	// KindFailedPrecondition complete called before all chunks received
	KindFailedPrecondition
	// KindConflict duplicate video for episode, or session already completed
	KindConflict
	// KindUpstreamUnavailable object-store or broker transient failure
	KindUpstreamUnavailable
)

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() error { return e.err }

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// SetKind 記錄錯誤並附上分類，handler 依分類轉成 HTTP status
func SetKind(kind Kind, errMsg string) error {
	logger.Log.Error(errMsg)
	return &kindError{kind: kind, err: errors.New(errMsg)}
}

// KindOf 取出錯誤分類，未分類一律視為 internal
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindInternal
}

// HTTPStatus 分類對應的 HTTP status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindGone:
		return http.StatusGone
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindFailedPrecondition:
		return http.StatusPreconditionFailed
	case KindConflict:
		return http.StatusConflict
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
