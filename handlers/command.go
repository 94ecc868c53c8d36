package handlers

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"slack-checkin-notify/services"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
)

// Slackのスラッシュコマンドを処理するハンドラ
func HandleSlackCommand(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Printf("failed to read request body: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		// ボディを復元
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		// 署名を検証
		if !services.ValidateSlackRequest(c.Request, bodyBytes, app.SigningSecret) {
			log.Println("invalid slack signature")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
			return
		}

		cmd, err := slack.SlashCommandParse(c.Request)
		if err != nil {
			log.Printf("failed to parse slash command: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command payload"})
			return
		}

		log.Printf("slack command received: command=%s, text=%s, team=%s, channel=%s, user=%s",
			cmd.Command, cmd.Text, cmd.TeamID, cmd.ChannelID, cmd.UserID)

		parts := parseCommand(cmd.Text)
		if len(parts) == 0 || parts[0] == "help" {
			showHelp(c, app)
			return
		}

		action, ok := app.Action(parts[0])
		if !ok {
			c.String(http.StatusOK, "不明なサブコマンドです: "+parts[0]+"\n`/checkin help` で使い方を確認してください。")
			return
		}

		ac := &ActionContext{
			ServerID:  cmd.TeamID,
			ChannelID: cmd.ChannelID,
			UserID:    cmd.UserID,
			MessageID: cmd.TriggerID,
			Text:      strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd.Text), parts[0])),
			Args:      parts[1:],
		}

		if !action.Validate(ac) {
			c.String(http.StatusOK, "使い方: "+action.Usage())
			return
		}

		// LLM を呼ぶコマンドは Slack の3秒制限に収まらないので先に応答する
		if isDeferred(action) {
			app.runAsync(c.Request.Context(), action, ac, func(ctx context.Context) Callback {
				return app.commandReplier(ctx, cmd)
			})
			c.String(http.StatusOK, AcceptedReply)
			return
		}

		var replies []string
		cb := func(text string) error {
			replies = append(replies, text)
			return nil
		}

		if !action.Handle(c.Request.Context(), ac, cb) {
			// 再送されたコマンドは何も返さない
			c.Status(http.StatusOK)
			return
		}

		c.String(http.StatusOK, strings.Join(replies, "\n"))
	}
}

// commandReplier は response_url 経由で実行者に結果を返す。URL がなければチャンネルに投稿する
func (app *App) commandReplier(ctx context.Context, cmd slack.SlashCommand) Callback {
	return func(text string) error {
		if cmd.ResponseURL == "" {
			return app.Messenger.SendMessage(ctx, cmd.ChannelID, text)
		}
		return slack.PostWebhookContext(ctx, cmd.ResponseURL, &slack.WebhookMessage{
			Text:         text,
			ResponseType: slack.ResponseTypeEphemeral,
		})
	}
}

// parseCommand はクォートを考慮してコマンドを分割する
func parseCommand(text string) []string {
	var parts []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(text); i++ {
		char := text[i]

		switch {
		case char == '"' || char == '\'':
			if !inQuote {
				// クォート開始
				inQuote = true
				quoteChar = char
			} else if char == quoteChar {
				// クォート終了
				inQuote = false
				quoteChar = 0
			} else {
				// 異なるクォート文字は普通の文字として扱う
				current.WriteByte(char)
			}
		case char == ' ' && !inQuote:
			// スペースで分割（クォート内でない場合のみ）
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

func showHelp(c *gin.Context, app *App) {
	var b strings.Builder
	b.WriteString(`*チェックインBot コマンド*
コマンド形式: /checkin サブコマンド [引数]

*初期設定*
:point_right: *1. メンバーの登録*
   /checkin add-member backend @user 進捗,困っていること,次にやること

:point_right: *2. チェックインの登録*
   /checkin schedule STANDUP WEEKDAYS 09:00 #daily-standup
   または自由文で: /checkin record "#team-updates に共有。#standup で平日 09:00 にスタンドアップ"

:point_right: *3. レポートチャンネルの設定*
   /checkin set-report-channel #team-updates

:information_source: 時刻はすべて UTC です。進捗はボットへのDMで送ってください。

*全コマンド一覧*
`)
	for _, name := range app.order {
		action := app.actions[name]
		b.WriteString("• " + action.Usage() + "\n")
	}

	c.String(http.StatusOK, strings.TrimSuffix(b.String(), "\n"))
}

func cleanUserID(userID string) string {
	// 空白を削除
	userID = strings.TrimSpace(userID)

	// 通常のユーザーメンション <@ID> または <@ID|name> の処理
	if strings.HasPrefix(userID, "<@") && strings.HasSuffix(userID, ">") {
		inner := strings.TrimPrefix(strings.TrimSuffix(userID, ">"), "<@")
		return strings.SplitN(inner, "|", 2)[0]
	}

	// @から始まる場合は@を削除
	userID = strings.TrimPrefix(userID, "@")

	// カンマが含まれる場合は削除
	userID = strings.ReplaceAll(userID, ",", "")

	return userID
}
