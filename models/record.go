package models

import (
	"time"

	"gorm.io/datatypes"
)

// Room はレコードをまとめる論理的な入れ物（サーバーごとのコレクション）
type Room struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time
}

// Record はルームに追記される不透明なタイムスタンプ付きレコード
type Record struct {
	ID        uint           `gorm:"primaryKey"`  // 挿入順を保持するための連番
	Key       string         `gorm:"uniqueIndex"` // 重複作成を検出するための識別子
	RoomID    string         `gorm:"index"`
	Type      string         `gorm:"index"` // "checkin-schedule", "report-channel-config" など
	ServerID  string         `gorm:"index"`
	Content   datatypes.JSON // 型付きペイロードのJSON
	CreatedAt time.Time
}

// レコード種別
const (
	RecordTypeCheckInSchedule     = "checkin-schedule"
	RecordTypeReportChannelConfig = "report-channel-config"
	RecordTypeTeamMember          = "team-member"
	RecordTypeUpdate              = "checkin-update"
)
