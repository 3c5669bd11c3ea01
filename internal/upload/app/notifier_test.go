package app

import (
	"testing"

	"video_ingest_service/internal/upload/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// 測試 StatusNotifier
func TestStatusNotifier(t *testing.T) {
	t.Run("訂閱者收得到廣播", func(t *testing.T) {
		n := NewStatusNotifier()
		videoID := uuid.NewString()

		ch, cancel := n.Subscribe(videoID)
		defer cancel()

		n.Publish(videoID, domain.VideoProcessing)
		n.Publish(videoID, domain.VideoReady)

		assert.Equal(t, domain.VideoProcessing, <-ch)
		assert.Equal(t, domain.VideoReady, <-ch)
	})

	t.Run("不同影片的事件互不干擾", func(t *testing.T) {
		n := NewStatusNotifier()
		videoA := uuid.NewString()
		videoB := uuid.NewString()

		chA, cancelA := n.Subscribe(videoA)
		defer cancelA()
		chB, cancelB := n.Subscribe(videoB)
		defer cancelB()

		n.Publish(videoA, domain.VideoReady)

		assert.Equal(t, domain.VideoReady, <-chA)
		assert.Empty(t, chB)
	})

	t.Run("取消訂閱後 channel 關閉", func(t *testing.T) {
		n := NewStatusNotifier()
		videoID := uuid.NewString()

		ch, cancel := n.Subscribe(videoID)
		cancel()

		_, ok := <-ch
		assert.False(t, ok)

		// 取消後廣播不會 panic
		n.Publish(videoID, domain.VideoReady)
	})

	t.Run("buffer 滿了丟事件不阻塞", func(t *testing.T) {
		n := NewStatusNotifier()
		videoID := uuid.NewString()

		_, cancel := n.Subscribe(videoID)
		defer cancel()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 100; i++ {
				n.Publish(videoID, domain.VideoProcessing)
			}
			close(done)
		}()
		<-done
	})
}
