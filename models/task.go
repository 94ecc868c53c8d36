package models

import (
	"strings"
	"time"
)

// Task はタスクホストに登録する定期実行の記述子
type Task struct {
	ID             string `gorm:"primaryKey"`
	Name           string `gorm:"index"`
	Tags           string // カンマ区切り
	IntervalMillis int64
	LastRunAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TagList はタグを配列で返す
func (t Task) TagList() []string {
	if t.Tags == "" {
		return []string{}
	}
	tags := strings.Split(t.Tags, ",")
	for i, tag := range tags {
		tags[i] = strings.TrimSpace(tag)
	}
	return tags
}

// HasTags は指定された全てのタグを持っているかを返す
func (t Task) HasTags(tags []string) bool {
	own := make(map[string]bool)
	for _, tag := range t.TagList() {
		own[tag] = true
	}
	for _, tag := range tags {
		if !own[tag] {
			return false
		}
	}
	return true
}

// Interval は実行間隔を返す
func (t Task) Interval() time.Duration {
	return time.Duration(t.IntervalMillis) * time.Millisecond
}
