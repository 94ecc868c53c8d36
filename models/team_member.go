package models

import "time"

// TeamMember はセクションごとに登録されたチームメンバー
type TeamMember struct {
	ID             string    `json:"id"`
	ServerID       string    `json:"serverId"`
	Section        string    `json:"section"`
	SlackUserID    string    `json:"slackUserId,omitempty"`
	GithubUsername string    `json:"githubUsername,omitempty"`
	DisplayName    string    `json:"displayName,omitempty"`
	UpdatesFormat  []string  `json:"updatesFormat"` // ステータス報告で期待する項目名（順序あり）
	CreatedAt      time.Time `json:"createdAt"`
}

// Handle はプラットフォーム上の識別子を返す（Slack を優先）
func (m TeamMember) Handle() string {
	if m.SlackUserID != "" {
		return m.SlackUserID
	}
	if m.GithubUsername != "" {
		return m.GithubUsername
	}
	return m.DisplayName
}

// Mention は Slack 上での表示形式を返す
func (m TeamMember) Mention() string {
	if m.SlackUserID != "" {
		return "<@" + m.SlackUserID + ">"
	}
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.GithubUsername
}
