package models

import "time"

// CheckInType はチェックインの種類
type CheckInType string

const (
	CheckInStandup       CheckInType = "STANDUP"
	CheckInSprint        CheckInType = "SPRINT"
	CheckInMentalHealth  CheckInType = "MENTAL_HEALTH"
	CheckInProjectStatus CheckInType = "PROJECT_STATUS"
	CheckInRetro         CheckInType = "RETRO"
)

// AllCheckInTypes 全てのチェックイン種別
var AllCheckInTypes = []CheckInType{
	CheckInStandup,
	CheckInSprint,
	CheckInMentalHealth,
	CheckInProjectStatus,
	CheckInRetro,
}

// IsValid は定義済みの種別かどうかを返す
func (t CheckInType) IsValid() bool {
	for _, v := range AllCheckInTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Frequency はチェックインの頻度
type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekdays Frequency = "WEEKDAYS"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiWeekly Frequency = "BI_WEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
)

// AllFrequencies 全ての頻度
var AllFrequencies = []Frequency{
	FrequencyDaily,
	FrequencyWeekdays,
	FrequencyWeekly,
	FrequencyBiWeekly,
	FrequencyMonthly,
}

// IsValid は定義済みの頻度かどうかを返す
func (f Frequency) IsValid() bool {
	for _, v := range AllFrequencies {
		if f == v {
			return true
		}
	}
	return false
}

// CheckInSchedule は定期チェックインの設定。作成後は変更しない
type CheckInSchedule struct {
	ScheduleID   string      `json:"scheduleId"`
	CheckInType  CheckInType `json:"checkInType"`
	ChannelID    string      `json:"channelId"`
	Frequency    Frequency   `json:"frequency"`
	CheckInTime  string      `json:"checkInTime"` // HH:MM (常にUTC)
	ServerID     string      `json:"serverId"`
	Source       string      `json:"source"`
	TeamMemberID string      `json:"teamMemberId,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}
