package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"slack-checkin-notify/models"
)

// チェックイン設定として抜き出す項目
const (
	FieldChannelForUpdates  = "channel-for-updates"
	FieldCheckInType        = "check-in-type"
	FieldChannelForCheckIns = "channel-for-check-ins"
	FieldFrequency          = "frequency"
	FieldTime               = "time"
)

// CheckInConfigSchema はチェックイン設定メッセージの項目
var CheckInConfigSchema = []string{
	FieldChannelForUpdates,
	FieldCheckInType,
	FieldChannelForCheckIns,
	FieldFrequency,
	FieldTime,
}

var channelFields = map[string]bool{
	FieldChannelForUpdates:  true,
	FieldChannelForCheckIns: true,
}

const (
	checkInConfigQuestion = "Does this message provide check-in schedule configuration (a channel for updates or check-ins, a check-in type, a frequency or a time) rather than asking a question or requesting help?"
	statusUpdateQuestion  = "Is this message a team member's status update about their own work rather than a question or a request for help?"
)

// GuidanceCheckInConfig は設定として読み取れなかった場合の案内
const GuidanceCheckInConfig = `チェックインの設定として読み取れませんでした。次の項目を含めて送ってください:
• 更新を共有するチャンネル（例: #team-updates）
• チェックインの種類（STANDUP / SPRINT / MENTAL_HEALTH / PROJECT_STATUS / RETRO）
• チェックインを行うチャンネル（例: #daily-standup）
• 頻度（DAILY / WEEKDAYS / WEEKLY / BI_WEEKLY / MONTHLY）
• 時刻（UTC の HH:MM、例: 09:00）`

// GuidanceStatusUpdate は進捗報告として読み取れなかった場合の案内
const GuidanceStatusUpdate = "進捗報告として読み取れませんでした。登録された項目（%s）に沿って今日の状況を送ってください。"

// IngestResult は取り込みの結果。Record が nil の場合は Guidance を返す
type IngestResult struct {
	Record   *models.UpdateRecord
	Guidance string
}

// Accepted はレコードとして保存されたかどうかを返す
func (r IngestResult) Accepted() bool {
	return r.Record != nil
}

// UpdateCollector はメンバーの自由記述を構造化して保存する
type UpdateCollector struct {
	store     RecordStore
	extractor Extractor
	messenger Messenger
	registry  *TeamRegistry
	now       func() time.Time
}

// NewUpdateCollector はコレクターを作成する
func NewUpdateCollector(store RecordStore, extractor Extractor, messenger Messenger, registry *TeamRegistry) *UpdateCollector {
	return &UpdateCollector{
		store:     store,
		extractor: extractor,
		messenger: messenger,
		registry:  registry,
		now:       time.Now,
	}
}

func updateRoom(serverID string) string {
	return "checkin-updates-" + serverID
}

type ingestRequest struct {
	kind       string
	serverID   string
	memberRef  string
	scheduleID string
	rawText    string
	schema     []string
	question   string
	guidance   string
}

// Ingest はチェックイン設定のメッセージを取り込む
func (c *UpdateCollector) Ingest(ctx context.Context, serverID, memberRef, rawText string) (IngestResult, error) {
	return c.ingest(ctx, ingestRequest{
		kind:      models.UpdateKindCheckInConfig,
		serverID:  serverID,
		memberRef: memberRef,
		rawText:   rawText,
		schema:    CheckInConfigSchema,
		question:  checkInConfigQuestion,
		guidance:  GuidanceCheckInConfig,
	})
}

// IngestStatusUpdate はメンバーの進捗報告を、登録済みの項目に沿って取り込む
func (c *UpdateCollector) IngestStatusUpdate(ctx context.Context, serverID, memberRef, scheduleID, rawText string) (IngestResult, error) {
	format := DefaultUpdatesFormat
	if c.registry != nil {
		member, err := c.registry.FindMember(ctx, serverID, memberRef)
		if err != nil {
			log.Printf("member lookup error (server: %s, member: %s): %v", serverID, memberRef, err)
		} else if member != nil && len(member.UpdatesFormat) > 0 {
			format = member.UpdatesFormat
		}
	}

	return c.ingest(ctx, ingestRequest{
		kind:       models.UpdateKindStatus,
		serverID:   serverID,
		memberRef:  memberRef,
		scheduleID: scheduleID,
		rawText:    rawText,
		schema:     format,
		question:   statusUpdateQuestion,
		guidance:   formatStatusGuidance(format),
	})
}

func formatStatusGuidance(format []string) string {
	return fmt.Sprintf(GuidanceStatusUpdate, strings.Join(format, " / "))
}

func (c *UpdateCollector) ingest(ctx context.Context, req ingestRequest) (IngestResult, error) {
	text := strings.TrimSpace(req.rawText)
	if text == "" {
		return IngestResult{}, &ValidationError{Field: "rawText", Reason: "must not be empty"}
	}

	ok, err := c.extractor.Classify(ctx, req.question, text)
	if err != nil {
		return IngestResult{}, err
	}
	if !ok {
		log.Printf("message is not a %s (server: %s, member: %s)", req.kind, req.serverID, req.memberRef)
		return IngestResult{Guidance: req.guidance}, nil
	}

	fields, err := c.extractor.Extract(ctx, req.schema, text)
	if err != nil {
		return IngestResult{}, err
	}

	if req.kind == models.UpdateKindCheckInConfig {
		c.resolveChannels(ctx, req.serverID, fields)
	}

	record := models.UpdateRecord{
		ID:              uuid.NewString(),
		Kind:            req.kind,
		MemberRef:       req.memberRef,
		ScheduleID:      req.scheduleID,
		RawText:         text,
		ExtractedFields: fields,
		FieldOrder:      append([]string(nil), req.schema...),
		Timestamp:       c.now().UTC(),
		ServerID:        req.serverID,
	}

	room := updateRoom(req.serverID)
	if err := c.store.EnsureRoom(ctx, room); err != nil {
		return IngestResult{}, err
	}

	rec, err := encodeRecord(models.RecordTypeUpdate, "checkin-update:"+record.ID, record.ServerID, record, record.Timestamp)
	if err != nil {
		return IngestResult{}, err
	}
	if err := c.store.CreateRecord(ctx, room, rec); err != nil {
		return IngestResult{}, err
	}

	log.Printf("update record stored (id: %s, kind: %s, server: %s, member: %s)", record.ID, record.Kind, record.ServerID, record.MemberRef)
	return IngestResult{Record: &record}, nil
}

// resolveChannels はチャンネル名をチャンネルIDに置き換える。一覧が取れなければ名前のまま残す
func (c *UpdateCollector) resolveChannels(ctx context.Context, serverID string, fields map[string]string) {
	if c.messenger == nil {
		return
	}

	channels, err := c.messenger.ListChannels(ctx, serverID)
	if err != nil {
		log.Printf("channel list error (server: %s): %v", serverID, err)
		return
	}

	for field := range channelFields {
		value := fields[field]
		if value == "" {
			continue
		}
		if id, ok := ResolveChannelID(channels, value); ok {
			fields[field] = id
		} else {
			log.Printf("channel %q not found (server: %s)", value, serverID)
		}
	}
}
