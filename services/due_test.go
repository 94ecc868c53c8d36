package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"slack-checkin-notify/models"
)

func at(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func newSchedule(freq models.Frequency, checkInTime, createdAt string) models.CheckInSchedule {
	return models.CheckInSchedule{
		ScheduleID:  "s1",
		CheckInType: models.CheckInStandup,
		ChannelID:   "C12345",
		Frequency:   freq,
		CheckInTime: checkInTime,
		ServerID:    "T1",
		CreatedAt:   at(createdAt),
	}
}

func TestParseCheckInTime(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		hour     int
		minute   int
		hasError bool
	}{
		{name: "正常な時刻", input: "09:00", hour: 9, minute: 0},
		{name: "最終時刻", input: "23:59", hour: 23, minute: 59},
		{name: "1桁の時", input: "9:00", hasError: true},
		{name: "24時", input: "24:00", hasError: true},
		{name: "60分", input: "12:60", hasError: true},
		{name: "空文字", input: "", hasError: true},
		{name: "数字以外", input: "ab:cd", hasError: true},
		{name: "秒付き", input: "09:00:00", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hour, minute, err := ParseCheckInTime(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				assert.False(t, IsValidTimeFormat(tt.input))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.hour, hour)
			assert.Equal(t, tt.minute, minute)
			assert.True(t, IsValidTimeFormat(tt.input))
		})
	}
}

func TestIsDue_Daily(t *testing.T) {
	schedule := newSchedule(models.FrequencyDaily, "09:00", "2024-01-01T08:00:00Z")

	// 予定時刻の30秒後の実行では送信対象
	instant, due := IsDue(at("2024-01-01T09:00:30Z"), schedule, time.Minute, time.Time{})
	assert.True(t, due)
	assert.Equal(t, at("2024-01-01T09:00:00Z"), instant)

	// 送信済みの予定時刻は再送しない
	_, due = IsDue(at("2024-01-01T09:05:00Z"), schedule, time.Minute, at("2024-01-01T09:00:00Z"))
	assert.False(t, due)

	// 窓が広ければ遅れて実行されても送る
	_, due = IsDue(at("2024-01-01T09:05:00Z"), schedule, 10*time.Minute, time.Time{})
	assert.True(t, due)

	// 窓の外
	_, due = IsDue(at("2024-01-01T09:05:00Z"), schedule, time.Minute, time.Time{})
	assert.False(t, due)

	// 予定時刻ちょうどは含まれる
	_, due = IsDue(at("2024-01-01T09:00:00Z"), schedule, time.Minute, time.Time{})
	assert.True(t, due)

	// 翌日は新しい予定時刻として送る
	instant, due = IsDue(at("2024-01-02T09:00:30Z"), schedule, time.Minute, at("2024-01-01T09:00:00Z"))
	assert.True(t, due)
	assert.Equal(t, at("2024-01-02T09:00:00Z"), instant)
}

func TestIsDue_BeforeFirstInstant(t *testing.T) {
	// 10時に作成された 09:00 のスケジュールは翌日が初回
	schedule := newSchedule(models.FrequencyDaily, "09:00", "2024-01-01T10:00:00Z")

	_, ok := MostRecentInstant(at("2024-01-01T10:00:30Z"), schedule)
	assert.False(t, ok)

	_, due := IsDue(at("2024-01-01T10:00:30Z"), schedule, 24*time.Hour, time.Time{})
	assert.False(t, due)

	instant, ok := MostRecentInstant(at("2024-01-02T09:00:00Z"), schedule)
	assert.True(t, ok)
	assert.Equal(t, at("2024-01-02T09:00:00Z"), instant)
}

func TestIsDue_Weekdays(t *testing.T) {
	// 2024-01-01 は月曜日
	schedule := newSchedule(models.FrequencyWeekdays, "09:00", "2024-01-01T08:00:00Z")

	tests := []struct {
		name string
		now  string
		due  bool
	}{
		{name: "金曜日", now: "2024-01-05T09:00:30Z", due: true},
		{name: "土曜日", now: "2024-01-06T09:00:30Z", due: false},
		{name: "日曜日", now: "2024-01-07T09:00:30Z", due: false},
		{name: "月曜日", now: "2024-01-08T09:00:30Z", due: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, due := IsDue(at(tt.now), schedule, time.Minute, time.Time{})
			assert.Equal(t, tt.due, due)
		})
	}

	// 週末は直前の金曜日が最新
	instant, ok := MostRecentInstant(at("2024-01-07T12:00:00Z"), schedule)
	assert.True(t, ok)
	assert.Equal(t, at("2024-01-05T09:00:00Z"), instant)
}

func TestIsDue_WeeklyAndBiWeekly(t *testing.T) {
	weekly := newSchedule(models.FrequencyWeekly, "09:00", "2024-01-01T08:00:00Z")
	biWeekly := newSchedule(models.FrequencyBiWeekly, "09:00", "2024-01-01T08:00:00Z")

	tests := []struct {
		name     string
		schedule models.CheckInSchedule
		now      string
		due      bool
	}{
		{name: "毎週 初回", schedule: weekly, now: "2024-01-01T09:00:30Z", due: true},
		{name: "毎週 翌日", schedule: weekly, now: "2024-01-02T09:00:30Z", due: false},
		{name: "毎週 1週間後", schedule: weekly, now: "2024-01-08T09:00:30Z", due: true},
		{name: "隔週 1週間後", schedule: biWeekly, now: "2024-01-08T09:00:30Z", due: false},
		{name: "隔週 2週間後", schedule: biWeekly, now: "2024-01-15T09:00:30Z", due: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, due := IsDue(at(tt.now), tt.schedule, time.Minute, time.Time{})
			assert.Equal(t, tt.due, due)
		})
	}

	instant, ok := MostRecentInstant(at("2024-01-10T12:00:00Z"), weekly)
	assert.True(t, ok)
	assert.Equal(t, at("2024-01-08T09:00:00Z"), instant)

	instant, ok = MostRecentInstant(at("2024-01-10T12:00:00Z"), biWeekly)
	assert.True(t, ok)
	assert.Equal(t, at("2024-01-01T09:00:00Z"), instant)
}

func TestIsDue_MonthlyClampsToMonthEnd(t *testing.T) {
	schedule := newSchedule(models.FrequencyMonthly, "09:00", "2024-01-31T08:00:00Z")

	tests := []struct {
		name    string
		now     string
		due     bool
		instant string
	}{
		{name: "うるう年の2月末", now: "2024-02-29T09:00:30Z", due: true, instant: "2024-02-29T09:00:00Z"},
		{name: "3月31日", now: "2024-03-31T09:00:30Z", due: true, instant: "2024-03-31T09:00:00Z"},
		{name: "3月30日", now: "2024-03-30T09:00:30Z", due: false, instant: "2024-02-29T09:00:00Z"},
		{name: "4月30日", now: "2024-04-30T09:00:30Z", due: true, instant: "2024-04-30T09:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instant, due := IsDue(at(tt.now), schedule, time.Minute, time.Time{})
			assert.Equal(t, tt.due, due)
			assert.Equal(t, at(tt.instant), instant)
		})
	}
}

func TestIsDue_InvalidSchedule(t *testing.T) {
	badTime := newSchedule(models.FrequencyDaily, "9am", "2024-01-01T08:00:00Z")
	_, due := IsDue(at("2024-01-01T09:00:30Z"), badTime, time.Hour, time.Time{})
	assert.False(t, due)

	badFreq := newSchedule(models.Frequency("HOURLY"), "09:00", "2024-01-01T08:00:00Z")
	_, due = IsDue(at("2024-01-01T09:00:30Z"), badFreq, time.Hour, time.Time{})
	assert.False(t, due)
}

func TestNextInstant(t *testing.T) {
	tests := []struct {
		name     string
		schedule models.CheckInSchedule
		now      string
		expected string
	}{
		{
			name:     "毎日 当日分が過ぎている",
			schedule: newSchedule(models.FrequencyDaily, "09:00", "2024-01-01T08:00:00Z"),
			now:      "2024-01-01T09:30:00Z",
			expected: "2024-01-02T09:00:00Z",
		},
		{
			name:     "平日 金曜日の後は月曜日",
			schedule: newSchedule(models.FrequencyWeekdays, "09:00", "2024-01-01T08:00:00Z"),
			now:      "2024-01-05T10:00:00Z",
			expected: "2024-01-08T09:00:00Z",
		},
		{
			name:     "作成前は初回の時刻",
			schedule: newSchedule(models.FrequencyDaily, "09:00", "2024-01-01T10:00:00Z"),
			now:      "2024-01-01T10:00:00Z",
			expected: "2024-01-02T09:00:00Z",
		},
		{
			name:     "毎月 月末に丸める",
			schedule: newSchedule(models.FrequencyMonthly, "09:00", "2024-01-31T08:00:00Z"),
			now:      "2024-02-01T00:00:00Z",
			expected: "2024-02-29T09:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := NextInstant(at(tt.now), tt.schedule)
			assert.True(t, ok)
			assert.Equal(t, at(tt.expected), next)
		})
	}
}

func TestLatestCheckIn(t *testing.T) {
	morning := newSchedule(models.FrequencyDaily, "09:00", "2024-01-01T08:00:00Z")
	morning.ScheduleID = "morning"
	afternoon := newSchedule(models.FrequencyDaily, "14:00", "2024-01-01T08:00:00Z")
	afternoon.ScheduleID = "afternoon"
	personal := newSchedule(models.FrequencyDaily, "15:00", "2024-01-01T08:00:00Z")
	personal.ScheduleID = "personal"
	personal.TeamMemberID = "U2"
	schedules := []models.CheckInSchedule{morning, afternoon, personal}

	tests := []struct {
		name      string
		now       string
		memberRef string
		expected  string
	}{
		{name: "最後に到来したチェックイン", now: "2024-01-02T15:30:00Z", memberRef: "U1", expected: "afternoon"},
		{name: "本人の個人スケジュールを含む", now: "2024-01-02T15:30:00Z", memberRef: "U2", expected: "personal"},
		{name: "午後の前は朝のチェックイン", now: "2024-01-02T10:00:00Z", memberRef: "U2", expected: "morning"},
		{name: "まだ一度も到来していない", now: "2024-01-01T08:30:00Z", memberRef: "U1", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			latest, ok := LatestCheckIn(at(tt.now), schedules, tt.memberRef)
			assert.Equal(t, tt.expected != "", ok)
			assert.Equal(t, tt.expected, latest.ScheduleID)
		})
	}
}
