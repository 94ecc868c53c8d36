package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
)

// IsTestMode はテスト時に署名検証をスキップするためのフラグ
var IsTestMode = false

// Channel はメッセージングプラットフォーム上のチャンネル
type Channel struct {
	ID     string
	Name   string
	IsText bool
}

// Member はプラットフォーム上のユーザー情報
type Member struct {
	ID          string
	Name        string
	DisplayName string
}

// Messenger はコアが必要とするチャットプラットフォームの最小限の機能
type Messenger interface {
	ListChannels(ctx context.Context, serverID string) ([]Channel, error)
	SendMessage(ctx context.Context, channelID, text string) error
	FetchMember(ctx context.Context, userID string) (*Member, error)
}

// SlackMessenger は slack-go を使った Messenger 実装
type SlackMessenger struct {
	client *slack.Client
}

// NewSlackMessenger は Slack クライアントを作成する
func NewSlackMessenger(token string, options ...slack.Option) *SlackMessenger {
	return &SlackMessenger{client: slack.New(token, options...)}
}

// ListChannels はボットから見えるチャンネルを全て返す
func (m *SlackMessenger) ListChannels(ctx context.Context, serverID string) ([]Channel, error) {
	channels := []Channel{}
	cursor := ""

	for {
		params := &slack.GetConversationsParameters{
			Cursor:          cursor,
			ExcludeArchived: true,
			Limit:           200,
			Types:           []string{"public_channel", "private_channel"},
			TeamID:          serverID,
		}

		found, next, err := m.client.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("slack conversations.list: %w", err)
		}

		for _, c := range found {
			channels = append(channels, Channel{ID: c.ID, Name: c.Name, IsText: true})
		}

		if next == "" {
			break
		}
		cursor = next
	}

	return channels, nil
}

// SendMessage はチャンネルにテキストを投稿する
func (m *SlackMessenger) SendMessage(ctx context.Context, channelID, text string) error {
	_, ts, err := m.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)),
	)
	if err != nil {
		return fmt.Errorf("slack chat.postMessage (channel: %s): %w", channelID, err)
	}

	log.Printf("slack message posted (channel: %s, ts: %s)", channelID, ts)
	return nil
}

// FetchMember はユーザー情報を取得する
func (m *SlackMessenger) FetchMember(ctx context.Context, userID string) (*Member, error) {
	user, err := m.client.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("slack users.info (user: %s): %w", userID, err)
	}

	displayName := user.Profile.DisplayName
	if displayName == "" {
		displayName = user.RealName
	}

	return &Member{ID: user.ID, Name: user.Name, DisplayName: displayName}, nil
}

// ValidateSlackRequest は Slack からのリクエスト署名を検証する
func ValidateSlackRequest(r *http.Request, body []byte, signingSecret string) bool {
	if IsTestMode {
		return true
	}

	if signingSecret == "" {
		log.Println("slack signing secret is not set")
		return false
	}

	verifier, err := slack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		log.Printf("slack verifier init error: %v", err)
		return false
	}

	if _, err := verifier.Write(body); err != nil {
		log.Printf("slack verifier write error: %v", err)
		return false
	}

	if err := verifier.Ensure(); err != nil {
		log.Printf("slack signature mismatch: %v", err)
		return false
	}

	return true
}

// ResolveChannelID はチャンネル名（大文字小文字を区別しない）または ID からチャンネルIDを解決する
func ResolveChannelID(channels []Channel, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)

	// <#C123|general> 形式
	if strings.HasPrefix(ref, "<#") && strings.HasSuffix(ref, ">") {
		inner := strings.TrimSuffix(strings.TrimPrefix(ref, "<#"), ">")
		parts := strings.SplitN(inner, "|", 2)
		ref = parts[0]
	}

	ref = strings.TrimPrefix(ref, "#")
	if ref == "" {
		return "", false
	}

	for _, c := range channels {
		if !c.IsText {
			continue
		}
		if c.ID == ref || strings.EqualFold(c.Name, ref) {
			return c.ID, true
		}
	}
	return "", false
}
