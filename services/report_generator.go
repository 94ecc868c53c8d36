package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"slack-checkin-notify/models"
)

// ReportWindow はレポートの集計期間 [Start, End)
type ReportWindow struct {
	Start time.Time
	End   time.Time
}

// LastHours は now から遡った hours 時間の期間を返す
func LastHours(now time.Time, hours int) ReportWindow {
	return ReportWindow{Start: now.Add(-time.Duration(hours) * time.Hour), End: now}
}

func (w ReportWindow) String() string {
	return fmt.Sprintf("%s 〜 %s (UTC)", w.Start.UTC().Format("2006-01-02 15:04"), w.End.UTC().Format("2006-01-02 15:04"))
}

// ReportResult はレポート生成の結果
type ReportResult struct {
	Text        string
	ChannelID   string
	UpdateCount int
}

// MemberUpdates はメンバーごとの進捗報告
type MemberUpdates struct {
	MemberRef string
	Updates   []models.UpdateRecord
}

// ReportGenerator は進捗報告を集計してレポートを投稿する
type ReportGenerator struct {
	schedules *ScheduleStore
	store     RecordStore
	generator TextGenerator
	messenger Messenger
}

// NewReportGenerator はレポートジェネレーターを作成する
func NewReportGenerator(schedules *ScheduleStore, store RecordStore, generator TextGenerator, messenger Messenger) *ReportGenerator {
	return &ReportGenerator{
		schedules: schedules,
		store:     store,
		generator: generator,
		messenger: messenger,
	}
}

// NoUpdatesReport は報告が1件もない期間のレポート本文
func NoUpdatesReport(window ReportWindow) string {
	return fmt.Sprintf("📋 *チームチェックインレポート*\n期間: %s\n\nこの期間に報告された更新はありません。", window)
}

// Generate は期間内の進捗報告からレポートを作成し、レポートチャンネルに投稿する
func (g *ReportGenerator) Generate(ctx context.Context, serverID string, window ReportWindow) (ReportResult, error) {
	cfg, ok, err := g.schedules.ReportChannel(ctx, serverID)
	if err != nil {
		return ReportResult{}, err
	}
	if !ok {
		return ReportResult{}, ErrConfigurationMissing
	}

	updates, err := g.collect(ctx, serverID, window)
	if err != nil {
		return ReportResult{}, err
	}

	var text string
	if len(updates) == 0 {
		// 更新がなくても「更新なし」として投稿する
		text = NoUpdatesReport(window)
	} else {
		groups := GroupByMember(updates)
		body, err := g.generator.Complete(ctx, BuildReportPrompt(window, groups))
		if err != nil {
			return ReportResult{}, unavailable("generative-text", err)
		}
		text = fmt.Sprintf("📋 *チームチェックインレポート*\n期間: %s\n\n%s", window, strings.TrimSpace(body))
	}

	if err := g.messenger.SendMessage(ctx, cfg.ChannelID, text); err != nil {
		return ReportResult{}, unavailable("messaging", err)
	}

	log.Printf("report posted (server: %s, channel: %s, updates: %d)", serverID, cfg.ChannelID, len(updates))
	return ReportResult{Text: text, ChannelID: cfg.ChannelID, UpdateCount: len(updates)}, nil
}

func (g *ReportGenerator) collect(ctx context.Context, serverID string, window ReportWindow) ([]models.UpdateRecord, error) {
	records, err := g.store.QueryRecords(ctx, updateRoom(serverID), RecordFilter{
		Type:  models.RecordTypeUpdate,
		Since: window.Start,
		Until: window.End,
	})
	if err != nil {
		return nil, err
	}

	updates := make([]models.UpdateRecord, 0, len(records))
	for _, r := range records {
		var u models.UpdateRecord
		if err := json.Unmarshal(r.Content, &u); err != nil {
			log.Printf("update record decode error (key: %s): %v", r.Key, err)
			continue
		}
		if u.Kind != models.UpdateKindStatus {
			continue
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// GroupByMember はメンバーの初出順で報告をまとめる
func GroupByMember(updates []models.UpdateRecord) []MemberUpdates {
	groups := []MemberUpdates{}
	index := make(map[string]int)
	for _, u := range updates {
		i, ok := index[u.MemberRef]
		if !ok {
			i = len(groups)
			index[u.MemberRef] = i
			groups = append(groups, MemberUpdates{MemberRef: u.MemberRef})
		}
		groups[i].Updates = append(groups[i].Updates, u)
	}
	return groups
}

// BuildReportPrompt はレポート生成用のプロンプトを作る
func BuildReportPrompt(window ReportWindow, groups []MemberUpdates) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a concise team check-in report in Japanese for the period %s.\n", window)
	b.WriteString("Summarize each member's progress, call out blockers explicitly, and end with a short overall summary.\n")
	b.WriteString("Refer to members exactly as written (Slack mentions like <@U123> must be kept as is).\n\n")

	for _, g := range groups {
		fmt.Fprintf(&b, "Member %s:\n", mentionRef(g.MemberRef))
		for _, u := range g.Updates {
			fmt.Fprintf(&b, "- [%s]\n", u.Timestamp.UTC().Format("2006-01-02 15:04"))

			for _, k := range u.OrderedKeys() {
				value := u.ExtractedFields[k]
				if value == "" {
					value = "(none)"
				}
				fmt.Fprintf(&b, "  %s: %s\n", k, value)
			}
		}
	}
	return b.String()
}

func mentionRef(ref string) string {
	if strings.HasPrefix(ref, "U") || strings.HasPrefix(ref, "W") {
		return "<@" + ref + ">"
	}
	return ref
}
