package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"slack-checkin-notify/models"
	"slack-checkin-notify/services"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("fail to open test db: %v", err)
	}

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

type sentMessage struct {
	ChannelID string
	Text      string
}

type fakeMessenger struct {
	mu       sync.Mutex
	channels []services.Channel
	members  map[string]*services.Member
	sent     []sentMessage
}

func (m *fakeMessenger) ListChannels(ctx context.Context, serverID string) ([]services.Channel, error) {
	return m.channels, nil
}

func (m *fakeMessenger) SendMessage(ctx context.Context, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{ChannelID: channelID, Text: text})
	return nil
}

func (m *fakeMessenger) FetchMember(ctx context.Context, userID string) (*services.Member, error) {
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

func (m *fakeMessenger) SentTo(channelID string) []sentMessage {
	var found []sentMessage
	for _, s := range m.Sent() {
		if s.ChannelID == channelID {
			found = append(found, s)
		}
	}
	return found
}

type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

func (g *fakeGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if len(g.responses) == 0 {
		return "", errors.New("no response prepared")
	}
	out := g.responses[0]
	g.responses = g.responses[1:]
	return out, nil
}

type testApp struct {
	*App
	messenger *fakeMessenger
	generator *fakeGenerator
}

func newTestApp(t *testing.T, responses ...string) testApp {
	services.IsTestMode = true
	t.Cleanup(func() {
		services.IsTestMode = false
	})

	store := services.NewGormRecordStore(setupTestDB(t))
	messenger := &fakeMessenger{
		channels: []services.Channel{
			{ID: "C100", Name: "team-updates", IsText: true},
			{ID: "C200", Name: "daily-standup", IsText: true},
		},
		members: map[string]*services.Member{
			"U777": {ID: "U777", Name: "alice", DisplayName: "Alice"},
		},
	}
	generator := &fakeGenerator{responses: responses}

	schedules := services.NewScheduleStore(store)
	registry := services.NewTeamRegistry(store, nil)
	collector := services.NewUpdateCollector(store, services.NewLLMExtractor(generator), messenger, registry)
	reports := services.NewReportGenerator(schedules, store, generator, messenger)

	app := NewApp(schedules, registry, collector, reports, messenger, "")
	return testApp{App: app, messenger: messenger, generator: generator}
}

func setupHTTPRequest(t *testing.T, text, triggerID string) *http.Request {
	data := url.Values{}
	data.Set("command", "/checkin")
	data.Set("text", text)
	data.Set("team_id", "T1")
	data.Set("channel_id", "C12345")
	data.Set("user_id", "U12345")
	data.Set("trigger_id", triggerID)

	req, err := http.NewRequest("POST", "/slack/command", strings.NewReader(data.Encode()))
	if err != nil {
		t.Fatalf("fail to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return req
}

func runCommand(t *testing.T, app *App, text, triggerID string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()

	router := gin.New()
	router.POST("/slack/command", HandleSlackCommand(app))
	router.ServeHTTP(w, setupHTTPRequest(t, text, triggerID))
	return w
}

// runDeferred は受け付け応答を確認し、裏で処理された結果の返信を返す。
// response_url が無いので返信はコマンドを実行したチャンネルに届く
func runDeferred(t *testing.T, app testApp, text, triggerID string) string {
	w := runCommand(t, app.App, text, triggerID)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, AcceptedReply, w.Body.String())

	app.Wait()
	replies := app.messenger.SentTo("C12345")
	require.NotEmpty(t, replies)
	return replies[len(replies)-1].Text
}
