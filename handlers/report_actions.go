package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"slack-checkin-notify/models"
	"slack-checkin-notify/services"
)

// DefaultReportHours はレポート期間を省略したときの時間数
const DefaultReportHours = 24

// GenerateReportAction は直近の進捗報告をまとめてレポートチャンネルに投稿する
type GenerateReportAction struct {
	app *App
}

func (a *GenerateReportAction) Name() string { return "report" }

func (a *GenerateReportAction) Deferred() bool { return true }

func (a *GenerateReportAction) Usage() string {
	return "/checkin report [時間数（デフォルト24）]"
}

func (a *GenerateReportAction) Validate(ac *ActionContext) bool {
	if ac.ServerID == "" {
		return false
	}
	if len(ac.Args) == 0 {
		return true
	}
	hours, err := strconv.Atoi(ac.Args[0])
	return err == nil && hours > 0
}

func (a *GenerateReportAction) Handle(ctx context.Context, ac *ActionContext, cb Callback) bool {
	if !a.app.once(ac, a.Name()) {
		return false
	}

	hours := DefaultReportHours
	if len(ac.Args) > 0 {
		hours, _ = strconv.Atoi(ac.Args[0])
	}

	window := services.LastHours(a.app.now().UTC(), hours)
	result, err := a.app.Reports.Generate(ctx, ac.ServerID, window)
	if err != nil {
		log.Printf("report generation error (server: %s): %v", ac.ServerID, err)
		reply(cb, replyForError(err))
		return true
	}

	reply(cb, fmt.Sprintf("📝 レポートを <#%s> に投稿しました（期間: %s、更新 %d 件）", result.ChannelID, window, result.UpdateCount))
	return true
}

// SubmitUpdateAction はDMで送られた進捗報告を受け付ける
type SubmitUpdateAction struct {
	app *App
}

func (a *SubmitUpdateAction) Name() string { return "submit-update" }

func (a *SubmitUpdateAction) Deferred() bool { return true }

func (a *SubmitUpdateAction) Usage() string {
	return "ボットにDMで今日の状況を送ってください"
}

func (a *SubmitUpdateAction) Validate(ac *ActionContext) bool {
	return ac.ServerID != "" && ac.UserID != "" && strings.TrimSpace(ac.Text) != ""
}

func (a *SubmitUpdateAction) Handle(ctx context.Context, ac *ActionContext, cb Callback) bool {
	if !a.app.once(ac, a.Name()) {
		return false
	}

	// 直近のチェックインへの返答として紐付ける
	scheduleID, err := a.app.Schedules.LatestCheckIn(ctx, ac.ServerID, ac.UserID)
	if err != nil {
		log.Printf("latest check-in lookup error (server: %s): %v", ac.ServerID, err)
	}

	result, err := a.app.Collector.IngestStatusUpdate(ctx, ac.ServerID, ac.UserID, scheduleID, ac.Text)
	if err != nil {
		log.Printf("status update ingest error (server: %s, user: %s): %v", ac.ServerID, ac.UserID, err)
		reply(cb, replyForError(err))
		return true
	}
	if !result.Accepted() {
		reply(cb, result.Guidance)
		return true
	}

	reply(cb, "✅ 進捗を受け付けました！\n"+formatFields(*result.Record))
	return true
}

func formatFields(record models.UpdateRecord) string {
	var b strings.Builder
	for _, k := range record.OrderedKeys() {
		value := record.ExtractedFields[k]
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "• *%s*: %s\n", k, value)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
