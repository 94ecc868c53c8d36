package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"slack-checkin-notify/services"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack/slackevents"
)

// Slackイベントを処理するハンドラ
func HandleSlackEvents(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Printf("failed to read request body: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		if !services.ValidateSlackRequest(c.Request, body, app.SigningSecret) {
			log.Println("invalid slack signature")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
			return
		}

		event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
		if err != nil {
			log.Printf("slack event parse error: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		log.Printf("slack event received: type=%s, team=%s", event.Type, event.TeamID)

		// URL検証チャレンジへの応答
		if event.Type == slackevents.URLVerification {
			verification, ok := event.Data.(*slackevents.EventsAPIURLVerificationEvent)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge"})
				return
			}
			c.String(http.StatusOK, verification.Challenge)
			return
		}

		if event.Type != slackevents.CallbackEvent {
			c.Status(http.StatusOK)
			return
		}

		eventID := ""
		if callback, ok := event.Data.(*slackevents.EventsAPICallbackEvent); ok {
			eventID = callback.EventID
		}

		// 処理は裏で行い、Slack の再送を避けるためすぐに 200 を返す
		switch ev := event.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			handleDirectMessage(c.Request.Context(), app, event.TeamID, eventID, ev)
		default:
			log.Printf("ignored slack event: %s", event.InnerEvent.Type)
		}

		c.Status(http.StatusOK)
	}
}

// handleDirectMessage はボットへのDMを進捗報告として処理する
func handleDirectMessage(ctx context.Context, app *App, teamID, eventID string, ev *slackevents.MessageEvent) {
	// ボット自身の投稿や編集・削除などのサブタイプは無視する
	if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" || ev.User == "" {
		return
	}

	action, ok := app.Action("submit-update")
	if !ok {
		return
	}

	messageID := eventID
	if messageID == "" {
		messageID = ev.ClientMsgID
	}

	ac := &ActionContext{
		ServerID:  teamID,
		ChannelID: ev.Channel,
		UserID:    ev.User,
		MessageID: messageID,
		Text:      ev.Text,
	}
	if !action.Validate(ac) {
		return
	}

	app.runAsync(ctx, action, ac, func(ctx context.Context) Callback {
		return func(text string) error {
			return app.Messenger.SendMessage(ctx, ev.Channel, text)
		}
	})
}
