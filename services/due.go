package services

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"slack-checkin-notify/models"
)

// ParseCheckInTime は時刻文字列（HH:MM）を時間と分に解析する
func ParseCheckInTime(timeStr string) (int, int, error) {
	if timeStr == "" {
		return 0, 0, errors.New("empty time string")
	}

	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, errors.New("invalid time format")
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.New("invalid hour")
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, errors.New("invalid minute")
	}

	return hour, minute, nil
}

// IsValidTimeFormat は時間形式（HH:MM）をバリデートする
func IsValidTimeFormat(timeStr string) bool {
	_, _, err := ParseCheckInTime(timeStr)
	return err == nil
}

// scheduleAnchor は作成日時以降で最初の HH:MM（UTC）を返す。全ての予定時刻はここから数える
func scheduleAnchor(schedule models.CheckInSchedule, hour, minute int) time.Time {
	created := schedule.CreatedAt.UTC()
	anchor := time.Date(created.Year(), created.Month(), created.Day(), hour, minute, 0, 0, time.UTC)
	if anchor.Before(created) {
		anchor = anchor.AddDate(0, 0, 1)
	}
	return anchor
}

// daysBetween は2つの日付の差を日数で返す（時刻部分は無視）
func daysBetween(from, to time.Time) int64 {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return (t.Unix() - f.Unix()) / 86400
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func monthlyInstant(year int, month time.Month, day, hour, minute int) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

// MostRecentInstant は now 以前で最も新しい予定時刻を返す。まだ一度も到来していなければ false
func MostRecentInstant(now time.Time, schedule models.CheckInSchedule) (time.Time, bool) {
	hour, minute, err := ParseCheckInTime(schedule.CheckInTime)
	if err != nil {
		return time.Time{}, false
	}

	now = now.UTC()
	anchor := scheduleAnchor(schedule, hour, minute)
	if now.Before(anchor) {
		return time.Time{}, false
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if candidate.After(now) {
		candidate = candidate.AddDate(0, 0, -1)
	}

	switch schedule.Frequency {
	case models.FrequencyDaily:
		// そのまま
	case models.FrequencyWeekdays:
		for candidate.Weekday() == time.Saturday || candidate.Weekday() == time.Sunday {
			candidate = candidate.AddDate(0, 0, -1)
		}
	case models.FrequencyWeekly, models.FrequencyBiWeekly:
		period := int64(7)
		if schedule.Frequency == models.FrequencyBiWeekly {
			period = 14
		}
		offset := daysBetween(anchor, candidate) % period
		candidate = candidate.AddDate(0, 0, -int(offset))
	case models.FrequencyMonthly:
		candidate = monthlyInstant(now.Year(), now.Month(), anchor.Day(), hour, minute)
		if candidate.After(now) {
			prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
			candidate = monthlyInstant(prev.Year(), prev.Month(), anchor.Day(), hour, minute)
		}
	default:
		return time.Time{}, false
	}

	if candidate.Before(anchor) {
		return time.Time{}, false
	}
	return candidate, true
}

// IsDue は now 時点でスケジュールを送信すべきかを判定する。
// 直近の予定時刻が (now-window, now] に入っていて、かつ lastDispatched より新しい場合のみ true
func IsDue(now time.Time, schedule models.CheckInSchedule, window time.Duration, lastDispatched time.Time) (time.Time, bool) {
	instant, ok := MostRecentInstant(now, schedule)
	if !ok {
		return time.Time{}, false
	}

	if !instant.After(now.UTC().Add(-window)) {
		return instant, false
	}

	if !lastDispatched.IsZero() && !instant.After(lastDispatched) {
		return instant, false
	}

	return instant, true
}

// NextInstant は now より後で最初の予定時刻を返す
func NextInstant(now time.Time, schedule models.CheckInSchedule) (time.Time, bool) {
	hour, minute, err := ParseCheckInTime(schedule.CheckInTime)
	if err != nil {
		return time.Time{}, false
	}

	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	anchor := scheduleAnchor(schedule, hour, minute)
	if anchor.After(start) {
		start = time.Date(anchor.Year(), anchor.Month(), anchor.Day(), hour, minute, 0, 0, time.UTC)
	}

	// 月次でも2か月分見れば必ず見つかる
	for d := 0; d <= 62; d++ {
		candidate := start.AddDate(0, 0, d)
		if !candidate.After(now) {
			continue
		}
		if instant, ok := MostRecentInstant(candidate, schedule); ok && instant.Equal(candidate) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// LatestCheckIn は now 以前に最後に到来したチェックインを返す。
// 個人向けスケジュールは memberRef 本人のものだけを対象にする
func LatestCheckIn(now time.Time, schedules []models.CheckInSchedule, memberRef string) (models.CheckInSchedule, bool) {
	var latest models.CheckInSchedule
	var latestAt time.Time
	found := false
	for _, s := range schedules {
		if s.TeamMemberID != "" && s.TeamMemberID != memberRef {
			continue
		}
		instant, ok := MostRecentInstant(now, s)
		if !ok {
			continue
		}
		if !found || instant.After(latestAt) {
			latest, latestAt, found = s, instant, true
		}
	}
	return latest, found
}
