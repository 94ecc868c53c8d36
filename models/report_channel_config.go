package models

import "time"

// ReportChannelConfig はレポート投稿先チャンネルの設定
type ReportChannelConfig struct {
	ServerID  string    `json:"serverId,omitempty"` // 空の場合は未設定扱い
	ChannelID string    `json:"channelId"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsConfigured はサーバーに紐づいた有効な設定かどうかを返す
func (c ReportChannelConfig) IsConfigured() bool {
	return c.ServerID != "" && c.ChannelID != ""
}
