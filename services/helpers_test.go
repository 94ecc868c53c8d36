package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"slack-checkin-notify/models"
)

// setupTestDB はテスト用のインメモリDBを作成する
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("fail to open test db: %v", err)
	}

	// :memory: は接続ごとに別DBになるので1本に絞る
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("fail to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Room{}, &models.Record{}, &models.Task{}); err != nil {
		t.Fatalf("fail to migrate test db: %v", err)
	}

	return db
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type sentMessage struct {
	ChannelID string
	Text      string
}

type fakeMessenger struct {
	mu           sync.Mutex
	channels     []Channel
	listErr      error
	failChannels map[string]bool
	members      map[string]*Member
	sent         []sentMessage
}

func (m *fakeMessenger) ListChannels(ctx context.Context, serverID string) ([]Channel, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.channels, nil
}

func (m *fakeMessenger) SendMessage(ctx context.Context, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChannels[channelID] {
		return errors.New("channel_not_found")
	}
	m.sent = append(m.sent, sentMessage{ChannelID: channelID, Text: text})
	return nil
}

func (m *fakeMessenger) FetchMember(ctx context.Context, userID string) (*Member, error) {
	if member, ok := m.members[userID]; ok {
		return member, nil
	}
	return nil, errors.New("user_not_found")
}

func (m *fakeMessenger) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage{}, m.sent...)
}

// fakeGenerator は登録した応答を順番に返す
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (g *fakeGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", errors.New("no response prepared")
	}
	out := g.responses[0]
	g.responses = g.responses[1:]
	return out, nil
}

// fakeTaskHost は readyAfter 回目の Ready 呼び出しまで準備中を返す
type fakeTaskHost struct {
	mu         sync.Mutex
	readyAfter int
	readyCalls int
	tasks      []models.Task
	workers    map[string]TaskWorker
	deleted    []string
	nextID     int
}

func (h *fakeTaskHost) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyCalls++
	return h.readyCalls > h.readyAfter
}

func (h *fakeTaskHost) RegisterWorker(name string, worker TaskWorker) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.workers == nil {
		h.workers = make(map[string]TaskWorker)
	}
	h.workers[name] = worker
	return nil
}

func (h *fakeTaskHost) CreatePeriodicTask(ctx context.Context, task models.Task) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	if task.ID == "" {
		task.ID = fmt.Sprintf("task-%d", h.nextID)
	}
	h.tasks = append(h.tasks, task)
	return task.ID, nil
}

func (h *fakeTaskHost) ListTasks(ctx context.Context, tags []string) ([]models.Task, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var found []models.Task
	for _, t := range h.tasks {
		if t.HasTags(tags) {
			found = append(found, t)
		}
	}
	return found, nil
}

func (h *fakeTaskHost) DeleteTask(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.tasks[:0]
	for _, t := range h.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	h.tasks = kept
	h.deleted = append(h.deleted, id)
	return nil
}
