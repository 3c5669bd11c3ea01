package bdd

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	// 若要輸出到 os.Stdout 就 import "os"
	"os"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Paths:  []string{"./featureFiles"}, // 指向 feature 檔相對路徑
			Format: "pretty",
			Output: os.Stdout, // 將結果輸出到終端
		},
	}

	// 若 suite.Run() != 0 表示測試失敗，可以讓 t.Fail() 或 t.Fatal()
	if suite.Run() != 0 {
		t.Fail()
	}
}

// 這個函式用來註冊 Gherkin 與 Step Definition 的對應
func InitializeScenario(s *godog.ScenarioContext) {
	s.Step(`^an upload session for episode "([^"]*)" with (\d+) chunks$`, anUploadSessionForEpisodeWithChunks)
	s.Step(`^I upload chunk (\d+)$`, iUploadChunk)
	s.Step(`^I complete the upload$`, iCompleteTheUpload)
	s.Step(`^I init another upload for episode "([^"]*)"$`, iInitAnotherUploadForEpisode)
	s.Step(`^the complete result should be "([^"]*)"$`, theCompleteResultShouldBe)
	s.Step(`^the init result should be "([^"]*)"$`, theInitResultShouldBe)

	s.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		// 每個 scenario 重置 session 狀態，episode 記錄跨 scenario 保留
		currentSession = nil
		lastCompleteResult = ""
		lastInitResult = ""
		return ctx, nil
	})
}

// 以下示例 Step function，用記憶體狀態機模擬上傳協定的行為
type uploadSession struct {
	episodeID   string
	totalChunks int
	received    map[int]bool
	completed   bool
}

var knownEpisodes = map[string]bool{}
var currentSession *uploadSession
var lastCompleteResult string
var lastInitResult string

func anUploadSessionForEpisodeWithChunks(episodeID string, totalChunks int) error {
	if knownEpisodes[episodeID] {
		return fmt.Errorf("episode %s already has a video", episodeID)
	}
	knownEpisodes[episodeID] = true
	currentSession = &uploadSession{
		episodeID:   episodeID,
		totalChunks: totalChunks,
		received:    map[int]bool{},
	}
	return nil
}

func iUploadChunk(index int) error {
	if currentSession == nil {
		return fmt.Errorf("no active upload session")
	}
	if index < 0 || index >= currentSession.totalChunks {
		return fmt.Errorf("chunk index %d out of range", index)
	}
	// 重送同一個 index 是冪等覆寫
	currentSession.received[index] = true
	return nil
}

func iCompleteTheUpload() error {
	if currentSession == nil {
		return fmt.Errorf("no active upload session")
	}
	switch {
	case currentSession.completed:
		lastCompleteResult = "conflict"
	case len(currentSession.received) != currentSession.totalChunks:
		lastCompleteResult = "precondition failed"
	default:
		currentSession.completed = true
		lastCompleteResult = "processing"
	}
	return nil
}

func iInitAnotherUploadForEpisode(episodeID string) error {
	if knownEpisodes[episodeID] {
		lastInitResult = "conflict"
	} else {
		knownEpisodes[episodeID] = true
		lastInitResult = "created"
	}
	return nil
}

func theCompleteResultShouldBe(expected string) error {
	if lastCompleteResult != expected {
		return fmt.Errorf("expected %s, but got %s", expected, lastCompleteResult)
	}
	return nil
}

func theInitResultShouldBe(expected string) error {
	if lastInitResult != expected {
		return fmt.Errorf("expected %s, but got %s", expected, lastInitResult)
	}
	return nil
}
