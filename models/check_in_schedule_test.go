package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckInTypeIsValid(t *testing.T) {
	for _, v := range AllCheckInTypes {
		assert.True(t, v.IsValid(), string(v))
	}
	assert.False(t, CheckInType("standup").IsValid())
	assert.False(t, CheckInType("").IsValid())
}

func TestFrequencyIsValid(t *testing.T) {
	for _, v := range AllFrequencies {
		assert.True(t, v.IsValid(), string(v))
	}
	assert.False(t, Frequency("BI-WEEKLY").IsValid())
}

func TestTeamMemberHandleAndMention(t *testing.T) {
	tests := []struct {
		name    string
		member  TeamMember
		handle  string
		mention string
	}{
		{
			name:    "Slack ユーザー",
			member:  TeamMember{SlackUserID: "U1", GithubUsername: "octocat", DisplayName: "Octo"},
			handle:  "U1",
			mention: "<@U1>",
		},
		{
			name:    "GitHub のみ",
			member:  TeamMember{GithubUsername: "octocat"},
			handle:  "octocat",
			mention: "octocat",
		},
		{
			name:    "GitHub と表示名",
			member:  TeamMember{GithubUsername: "octocat", DisplayName: "The Octocat"},
			handle:  "octocat",
			mention: "The Octocat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.handle, tt.member.Handle())
			assert.Equal(t, tt.mention, tt.member.Mention())
		})
	}
}

func TestReportChannelConfigIsConfigured(t *testing.T) {
	assert.True(t, ReportChannelConfig{ServerID: "T1", ChannelID: "C1"}.IsConfigured())
	assert.False(t, ReportChannelConfig{ChannelID: "C1"}.IsConfigured())
	assert.False(t, ReportChannelConfig{ServerID: "T1"}.IsConfigured())
}
