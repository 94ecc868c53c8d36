package services

import (
	"fmt"
	"strings"

	"slack-checkin-notify/models"
)

var checkInTypeLabels = map[models.CheckInType]string{
	models.CheckInStandup:       "デイリースタンドアップ",
	models.CheckInSprint:        "スプリントチェックイン",
	models.CheckInMentalHealth:  "メンタルヘルスチェックイン",
	models.CheckInProjectStatus: "プロジェクト状況チェックイン",
	models.CheckInRetro:         "振り返り",
}

var frequencyLabels = map[models.Frequency]string{
	models.FrequencyDaily:    "毎日",
	models.FrequencyWeekdays: "平日",
	models.FrequencyWeekly:   "毎週",
	models.FrequencyBiWeekly: "隔週",
	models.FrequencyMonthly:  "毎月",
}

// CheckInTypeLabel はチェックイン種別の表示名を返す
func CheckInTypeLabel(t models.CheckInType) string {
	if label, ok := checkInTypeLabels[t]; ok {
		return label
	}
	return string(t)
}

// FrequencyLabel は頻度の表示名を返す
func FrequencyLabel(f models.Frequency) string {
	if label, ok := frequencyLabels[f]; ok {
		return label
	}
	return string(f)
}

// BuildReminderMessage はチェックインのリマインダー本文を作る
func BuildReminderMessage(schedule models.CheckInSchedule, members []models.TeamMember) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ *%sの時間です！*\n", CheckInTypeLabel(schedule.CheckInType))

	// 重複登録されたメンバーは1回だけメンションする
	mentions := make([]string, 0, len(members))
	seen := make(map[string]bool)
	for _, m := range members {
		if m.SlackUserID == "" || seen[m.SlackUserID] {
			continue
		}
		seen[m.SlackUserID] = true
		mentions = append(mentions, m.Mention())
	}
	if len(mentions) > 0 {
		b.WriteString(strings.Join(mentions, " "))
		b.WriteString("\n")
	}

	b.WriteString("このボットにDMで今日の状況を送ってください。")
	return b.String()
}

// FormatSchedule はスケジュール一覧の1行を作る
func FormatSchedule(schedule models.CheckInSchedule) string {
	return fmt.Sprintf("• `%s` %s - %s %s (UTC) <#%s>",
		shortID(schedule.ScheduleID), CheckInTypeLabel(schedule.CheckInType),
		FrequencyLabel(schedule.Frequency), schedule.CheckInTime, schedule.ChannelID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
