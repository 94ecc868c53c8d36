package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"slack-checkin-notify/models"
	"slack-checkin-notify/services"
)

// RecordScheduleAction は自由形式のメッセージからチェックイン設定を読み取って登録する
type RecordScheduleAction struct {
	app *App
}

func (a *RecordScheduleAction) Name() string { return "record" }

func (a *RecordScheduleAction) Deferred() bool { return true }

func (a *RecordScheduleAction) Usage() string {
	return "/checkin record <設定内容（例: #team-updates に共有、#standup で平日 09:00 にスタンドアップ）>"
}

func (a *RecordScheduleAction) Validate(ac *ActionContext) bool {
	return ac.ServerID != "" && strings.TrimSpace(ac.Text) != ""
}

func (a *RecordScheduleAction) Handle(ctx context.Context, ac *ActionContext, cb Callback) bool {
	if !a.app.once(ac, a.Name()) {
		return false
	}

	result, err := a.app.Collector.Ingest(ctx, ac.ServerID, ac.UserID, ac.Text)
	if err != nil {
		log.Printf("record ingest error (server: %s): %v", ac.ServerID, err)
		reply(cb, replyForError(err))
		return true
	}
	if !result.Accepted() {
		reply(cb, result.Guidance)
		return true
	}

	fields := result.Record.ExtractedFields
	var lines []string

	if channel := fields[services.FieldChannelForUpdates]; channel != "" {
		err := a.app.Schedules.CreateOrUpdateReportChannel(ctx, models.ReportChannelConfig{
			ServerID:  ac.ServerID,
			ChannelID: channel,
		})
		switch {
		case services.IsDuplicate(err):
			lines = append(lines, "レポートチャンネルは既に設定済みです。")
		case err != nil:
			log.Printf("report channel config error (server: %s): %v", ac.ServerID, err)
			lines = append(lines, replyForError(err))
		default:
			// 既存の設定は上書きされないので、有効な方を案内する
			if cfg, ok, _ := a.app.Schedules.ReportChannel(ctx, ac.ServerID); ok && cfg.ChannelID != channel {
				lines = append(lines, fmt.Sprintf("レポートチャンネルは既に <#%s> に設定済みです。変更する場合は `/checkin set-report-channel` を使ってください。", cfg.ChannelID))
			} else {
				lines = append(lines, fmt.Sprintf("レポートは <#%s> に投稿されます。", channel))
			}
		}
	}

	checkInType := fields[services.FieldCheckInType]
	if checkInType == "" {
		checkInType = string(models.CheckInStandup)
	}
	channelID := fields[services.FieldChannelForCheckIns]
	if channelID == "" {
		channelID = ac.ChannelID
	}

	scheduleID, err := a.app.Schedules.CreateSchedule(ctx, services.ScheduleInput{
		CheckInType: checkInType,
		ChannelID:   channelID,
		Frequency:   fields[services.FieldFrequency],
		CheckInTime: fields[services.FieldTime],
		ServerID:    ac.ServerID,
		Source:      "slack-record",
	})
	if err != nil {
		log.Printf("record schedule error (server: %s): %v", ac.ServerID, err)
		lines = append(lines, replyForError(err))
		reply(cb, strings.Join(lines, "\n"))
		return true
	}

	lines = append([]string{fmt.Sprintf("✅ チェックインを登録しました（ID: `%s`）", scheduleID)}, lines...)
	reply(cb, strings.Join(lines, "\n"))
	return true
}

// CreateScheduleAction は引数を指定してスケジュールを作成する
//
//	/checkin schedule <種類> <頻度> <HH:MM> [#channel]
type CreateScheduleAction struct {
	app *App
}

func (a *CreateScheduleAction) Name() string { return "schedule" }

func (a *CreateScheduleAction) Usage() string {
	return "/checkin schedule <STANDUP|SPRINT|MENTAL_HEALTH|PROJECT_STATUS|RETRO> <DAILY|WEEKDAYS|WEEKLY|BI_WEEKLY|MONTHLY> <HH:MM(UTC)> [#channel]"
}

func (a *CreateScheduleAction) Validate(ac *ActionContext) bool {
	return ac.ServerID != "" && len(ac.Args) >= 3
}

func (a *CreateScheduleAction) Handle(ctx context.Context, ac *ActionContext, cb Callback) bool {
	if !a.app.once(ac, a.Name()) {
		return false
	}

	channelRef := ""
	if len(ac.Args) > 3 {
		channelRef = ac.Args[3]
	}
	channelID, err := a.app.resolveChannel(ctx, ac, channelRef)
	if err != nil {
		reply(cb, err.Error())
		return true
	}

	input := services.ScheduleInput{
		CheckInType: ac.Args[0],
		Frequency:   ac.Args[1],
		CheckInTime: ac.Args[2],
		ChannelID:   channelID,
		ServerID:    ac.ServerID,
		Source:      "slack-command",
	}
	scheduleID, err := a.app.Schedules.CreateSchedule(ctx, input)
	if err != nil {
		log.Printf("create schedule error (server: %s): %v", ac.ServerID, err)
		reply(cb, replyForError(err))
		return true
	}

	reply(cb, fmt.Sprintf("✅ %s を <#%s> に %s %s (UTC) で登録しました（ID: `%s`）",
		services.CheckInTypeLabel(models.CheckInType(services.NormalizeEnum(input.CheckInType))), channelID,
		services.FrequencyLabel(models.Frequency(services.NormalizeEnum(input.Frequency))), input.CheckInTime, scheduleID))
	return true
}

// ListSchedulesAction は登録済みのスケジュールと次回の実行時刻を表示する
type ListSchedulesAction struct {
	app *App
}

func (a *ListSchedulesAction) Name() string { return "list-schedules" }

func (a *ListSchedulesAction) Usage() string { return "/checkin list-schedules" }

func (a *ListSchedulesAction) Validate(ac *ActionContext) bool {
	return ac.ServerID != ""
}

func (a *ListSchedulesAction) Handle(ctx context.Context, ac *ActionContext, cb Callback) bool {
	if !a.app.once(ac, a.Name()) {
		return false
	}

	schedules, err := a.app.Schedules.ListSchedules(ctx, ac.ServerID)
	if err != nil {
		log.Printf("list schedules error (server: %s): %v", ac.ServerID, err)
		reply(cb, replyForError(err))
		return true
	}
	if len(schedules) == 0 {
		reply(cb, "まだチェックインが登録されていません。`/checkin schedule` または `/checkin record` で登録してください。")
		return true
	}

	now := a.app.now().UTC()
	var b strings.Builder
	b.WriteString("*チェックイン一覧*\n")
	for _, s := range schedules {
		b.WriteString(services.FormatSchedule(s))
		if next, ok := services.NextInstant(now, s); ok {
			fmt.Fprintf(&b, " 次回: %s", next.Format("2006-01-02 15:04"))
		}
		b.WriteString("\n")
	}

	cfg, ok, err := a.app.Schedules.ReportChannel(ctx, ac.ServerID)
	switch {
	case err != nil:
		log.Printf("report channel lookup error (server: %s): %v", ac.ServerID, err)
	case ok:
		fmt.Fprintf(&b, "レポートチャンネル: <#%s>", cfg.ChannelID)
	default:
		b.WriteString("レポートチャンネル: 未設定")
	}

	reply(cb, strings.TrimSuffix(b.String(), "\n"))
	return true
}

// SetReportChannelAction はレポートの投稿先を変更する
type SetReportChannelAction struct {
	app *App
}

func (a *SetReportChannelAction) Name() string { return "set-report-channel" }

func (a *SetReportChannelAction) Usage() string { return "/checkin set-report-channel [#channel]" }

func (a *SetReportChannelAction) Validate(ac *ActionContext) bool {
	return ac.ServerID != ""
}

func (a *SetReportChannelAction) Handle(ctx context.Context, ac *ActionContext, cb Callback) bool {
	if !a.app.once(ac, a.Name()) {
		return false
	}

	channelRef := ""
	if len(ac.Args) > 0 {
		channelRef = ac.Args[0]
	}
	channelID, err := a.app.resolveChannel(ctx, ac, channelRef)
	if err != nil {
		reply(cb, err.Error())
		return true
	}

	err = a.app.Schedules.UpdateReportChannel(ctx, models.ReportChannelConfig{
		ServerID:  ac.ServerID,
		ChannelID: channelID,
	})
	if err != nil {
		log.Printf("set report channel error (server: %s): %v", ac.ServerID, err)
		reply(cb, replyForError(err))
		return true
	}

	reply(cb, fmt.Sprintf("レポートチャンネルを <#%s> に設定しました。", channelID))
	return true
}

// resolveChannel はコマンド引数のチャンネル指定をIDにする。省略時は実行したチャンネル
func (app *App) resolveChannel(ctx context.Context, ac *ActionContext, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ac.ChannelID, nil
	}

	// Slack が展開した <#C123|name> はそのまま使える
	if strings.HasPrefix(ref, "<#") {
		if id := channelIDFromMention(ref); id != "" {
			return id, nil
		}
	}

	if app.Messenger == nil {
		return "", errors.New("チャンネルを解決できませんでした。")
	}
	channels, err := app.Messenger.ListChannels(ctx, ac.ServerID)
	if err != nil {
		log.Printf("channel list error (server: %s): %v", ac.ServerID, err)
		return "", errors.New("チャンネル一覧を取得できませんでした。しばらくしてからもう一度お試しください。")
	}
	id, ok := services.ResolveChannelID(channels, ref)
	if !ok {
		return "", fmt.Errorf("チャンネル %s が見つかりません。", ref)
	}
	return id, nil
}

func channelIDFromMention(ref string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(ref, "<#"), ">")
	return strings.SplitN(inner, "|", 2)[0]
}
