package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"slack-checkin-notify/models"
)

// DefaultUpdatesFormat はメンバーが項目を指定しなかった場合のステータス報告項目
var DefaultUpdatesFormat = []string{"progress", "blockers", "next steps"}

// MemberIdentity はメンバーを識別するプラットフォームごとの情報（いずれか1つ以上）
type MemberIdentity struct {
	SlackUserID    string
	GithubUsername string
	DisplayName    string
}

// IsEmpty はどの識別子も指定されていないかを返す
func (i MemberIdentity) IsEmpty() bool {
	return i.SlackUserID == "" && i.GithubUsername == "" && i.DisplayName == ""
}

// MemberSection はセクションごとにまとめたメンバー一覧
type MemberSection struct {
	Section string
	Members []models.TeamMember
}

// TeamRegistry はチームメンバーの登録と一覧を担う
type TeamRegistry struct {
	store    RecordStore
	resolver DisplayNameResolver
	now      func() time.Time
}

// NewTeamRegistry はレジストリを作成する。resolver は nil でもよい
func NewTeamRegistry(store RecordStore, resolver DisplayNameResolver) *TeamRegistry {
	return &TeamRegistry{
		store:    store,
		resolver: resolver,
		now:      time.Now,
	}
}

func memberRoom(serverID string) string {
	return "team-members-" + serverID
}

// AddMember はメンバーを追加する。同じセクション・識別子での再登録も別エントリとして残る
func (r *TeamRegistry) AddMember(ctx context.Context, serverID, section string, identity MemberIdentity, updatesFormat []string) (*models.TeamMember, error) {
	section = strings.TrimSpace(section)
	if strings.TrimSpace(serverID) == "" {
		return nil, &ValidationError{Field: "serverId", Reason: "must not be empty"}
	}
	if section == "" {
		return nil, &ValidationError{Field: "section", Reason: "must not be empty"}
	}
	if identity.IsEmpty() {
		return nil, &ValidationError{Field: "identity", Reason: "at least one platform handle is required"}
	}

	format := cleanFormat(updatesFormat)
	if len(format) == 0 {
		format = append([]string{}, DefaultUpdatesFormat...)
	}

	// GitHub のユーザー名だけ指定された場合は表示名を補完する
	if identity.DisplayName == "" && identity.GithubUsername != "" && r.resolver != nil {
		name, err := r.resolver.ResolveDisplayName(ctx, identity.GithubUsername)
		if err != nil {
			log.Printf("display name resolve error (github user: %s): %v", identity.GithubUsername, err)
		} else {
			identity.DisplayName = name
		}
	}

	member := models.TeamMember{
		ID:             uuid.NewString(),
		ServerID:       serverID,
		Section:        section,
		SlackUserID:    identity.SlackUserID,
		GithubUsername: identity.GithubUsername,
		DisplayName:    identity.DisplayName,
		UpdatesFormat:  format,
		CreatedAt:      r.now().UTC(),
	}

	room := memberRoom(serverID)
	if err := r.store.EnsureRoom(ctx, room); err != nil {
		return nil, err
	}

	record, err := encodeRecord(models.RecordTypeTeamMember, "team-member:"+member.ID, serverID, member, member.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := r.store.CreateRecord(ctx, room, record); err != nil {
		return nil, err
	}

	log.Printf("team member added (server: %s, section: %s, handle: %s)", serverID, section, member.Handle())
	return &member, nil
}

// ListMembers はセクションの初出順、セクション内は登録順でメンバーを返す
func (r *TeamRegistry) ListMembers(ctx context.Context, serverID string) ([]MemberSection, error) {
	members, err := r.members(ctx, serverID)
	if err != nil {
		return nil, err
	}

	sections := []MemberSection{}
	index := make(map[string]int)
	for _, m := range members {
		i, ok := index[m.Section]
		if !ok {
			i = len(sections)
			index[m.Section] = i
			sections = append(sections, MemberSection{Section: m.Section})
		}
		sections[i].Members = append(sections[i].Members, m)
	}
	return sections, nil
}

// FindMember は Slack ユーザーIDでメンバーを探す。重複登録がある場合は最後の登録を返す
func (r *TeamRegistry) FindMember(ctx context.Context, serverID, slackUserID string) (*models.TeamMember, error) {
	members, err := r.members(ctx, serverID)
	if err != nil {
		return nil, err
	}

	var found *models.TeamMember
	for i := range members {
		if members[i].SlackUserID == slackUserID {
			found = &members[i]
		}
	}
	return found, nil
}

func (r *TeamRegistry) members(ctx context.Context, serverID string) ([]models.TeamMember, error) {
	records, err := r.store.QueryRecords(ctx, memberRoom(serverID), RecordFilter{Type: models.RecordTypeTeamMember})
	if err != nil {
		return nil, err
	}

	members := make([]models.TeamMember, 0, len(records))
	for _, rec := range records {
		var m models.TeamMember
		if err := json.Unmarshal(rec.Content, &m); err != nil {
			log.Printf("team member record decode error (key: %s): %v", rec.Key, err)
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

func cleanFormat(fields []string) []string {
	cleaned := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			cleaned = append(cleaned, f)
		}
	}
	return cleaned
}
