package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"slack-checkin-notify/models"
)

// ScheduleInput はスケジュール作成時の入力
type ScheduleInput struct {
	CheckInType  string
	ChannelID    string
	Frequency    string
	CheckInTime  string
	ServerID     string
	Source       string
	TeamMemberID string
}

// ScheduleStore はチェックインスケジュールとレポートチャンネル設定を管理する
type ScheduleStore struct {
	store RecordStore
	now   func() time.Time

	mu             sync.RWMutex
	reportChannels map[string]models.ReportChannelConfig
	// generation は書き込みのたびに進む。読み込み中に進んだ結果はキャッシュしない
	generation uint64
}

// NewScheduleStore はスケジュールストアを作成する
func NewScheduleStore(store RecordStore) *ScheduleStore {
	return &ScheduleStore{
		store:          store,
		now:            time.Now,
		reportChannels: make(map[string]models.ReportChannelConfig),
	}
}

func scheduleRoom(serverID string) string {
	return "checkin-schedules-" + serverID
}

func reportChannelRoom(serverID string) string {
	return "report-channel-config-" + serverID
}

// NormalizeEnum は "bi-weekly" や "mental health" を "BI_WEEKLY" 形式にそろえる
func NormalizeEnum(value string) string {
	v := strings.ToUpper(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, "-", "_")
	v = strings.ReplaceAll(v, " ", "_")
	return v
}

// ValidateScheduleInput は入力を検証し、正規化した値を返す
func ValidateScheduleInput(input ScheduleInput) (ScheduleInput, error) {
	input.CheckInType = NormalizeEnum(input.CheckInType)
	input.Frequency = NormalizeEnum(input.Frequency)
	input.CheckInTime = strings.TrimSpace(input.CheckInTime)
	input.ChannelID = strings.TrimSpace(input.ChannelID)

	if strings.TrimSpace(input.ServerID) == "" {
		return input, &ValidationError{Field: "serverId", Reason: "must not be empty"}
	}
	if input.ChannelID == "" {
		return input, &ValidationError{Field: "channelId", Reason: "must not be empty"}
	}
	if !models.CheckInType(input.CheckInType).IsValid() {
		return input, &ValidationError{Field: "checkInType", Reason: fmt.Sprintf("unknown type %q", input.CheckInType)}
	}
	if !models.Frequency(input.Frequency).IsValid() {
		return input, &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", input.Frequency)}
	}
	if !IsValidTimeFormat(input.CheckInTime) {
		return input, &ValidationError{Field: "checkInTime", Reason: "must be HH:MM"}
	}
	return input, nil
}

// CreateSchedule はスケジュールを検証して保存し、スケジュールIDを返す
func (s *ScheduleStore) CreateSchedule(ctx context.Context, input ScheduleInput) (string, error) {
	input, err := ValidateScheduleInput(input)
	if err != nil {
		return "", err
	}

	schedule := models.CheckInSchedule{
		ScheduleID:   uuid.NewString(),
		CheckInType:  models.CheckInType(input.CheckInType),
		ChannelID:    input.ChannelID,
		Frequency:    models.Frequency(input.Frequency),
		CheckInTime:  input.CheckInTime,
		ServerID:     input.ServerID,
		Source:       input.Source,
		TeamMemberID: input.TeamMemberID,
		CreatedAt:    s.now().UTC(),
	}

	// レコードより先にルームを作っておく
	room := scheduleRoom(input.ServerID)
	if err := s.store.EnsureRoom(ctx, room); err != nil {
		return "", err
	}

	record, err := encodeRecord(models.RecordTypeCheckInSchedule, "checkin-schedule:"+schedule.ScheduleID, schedule.ServerID, schedule, schedule.CreatedAt)
	if err != nil {
		return "", err
	}
	if err := s.store.CreateRecord(ctx, room, record); err != nil {
		return "", err
	}

	log.Printf("checkin schedule created (schedule id: %s, server: %s, type: %s, frequency: %s, time: %s)",
		schedule.ScheduleID, schedule.ServerID, schedule.CheckInType, schedule.Frequency, schedule.CheckInTime)
	return schedule.ScheduleID, nil
}

// ListSchedules はサーバーのスケジュールを作成順に返す
func (s *ScheduleStore) ListSchedules(ctx context.Context, serverID string) ([]models.CheckInSchedule, error) {
	records, err := s.store.QueryRecords(ctx, scheduleRoom(serverID), RecordFilter{Type: models.RecordTypeCheckInSchedule})
	if err != nil {
		return nil, err
	}
	return decodeSchedules(records), nil
}

// ListAllSchedules は全サーバーのスケジュールを返す
func (s *ScheduleStore) ListAllSchedules(ctx context.Context) ([]models.CheckInSchedule, error) {
	records, err := s.store.QueryRecords(ctx, "", RecordFilter{Type: models.RecordTypeCheckInSchedule})
	if err != nil {
		return nil, err
	}
	return decodeSchedules(records), nil
}

// LatestCheckIn はサーバーで直近に到来したチェックインのIDを返す。該当なしは空文字
func (s *ScheduleStore) LatestCheckIn(ctx context.Context, serverID, memberRef string) (string, error) {
	schedules, err := s.ListSchedules(ctx, serverID)
	if err != nil {
		return "", err
	}
	schedule, ok := LatestCheckIn(s.now(), schedules, memberRef)
	if !ok {
		return "", nil
	}
	return schedule.ScheduleID, nil
}

func decodeSchedules(records []models.Record) []models.CheckInSchedule {
	schedules := make([]models.CheckInSchedule, 0, len(records))
	for _, r := range records {
		var schedule models.CheckInSchedule
		if err := json.Unmarshal(r.Content, &schedule); err != nil {
			log.Printf("schedule record decode error (key: %s): %v", r.Key, err)
			continue
		}
		schedules = append(schedules, schedule)
	}
	return schedules
}

// CreateOrUpdateReportChannel はレポートチャンネル設定がまだなければ作成する。
// 既存の設定は上書きしない（明示的な更新は UpdateReportChannel を使う）
func (s *ScheduleStore) CreateOrUpdateReportChannel(ctx context.Context, cfg models.ReportChannelConfig) error {
	if err := validateReportChannel(cfg); err != nil {
		return err
	}

	existing, found, err := s.findReportChannel(ctx, cfg.ServerID)
	if err != nil {
		return err
	}
	if found {
		log.Printf("report channel config already exists (server: %s, channel: %s)", existing.ServerID, existing.ChannelID)
		return nil
	}

	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = s.now().UTC()
	}

	room := reportChannelRoom(cfg.ServerID)
	if err := s.store.EnsureRoom(ctx, room); err != nil {
		return err
	}

	record, err := encodeRecord(models.RecordTypeReportChannelConfig, "report-channel-config:"+cfg.ServerID, cfg.ServerID, cfg, cfg.CreatedAt)
	if err != nil {
		return err
	}
	if err := s.store.CreateRecord(ctx, room, record); err != nil {
		return err
	}

	s.Invalidate(cfg.ServerID)
	log.Printf("report channel config created (server: %s, channel: %s)", cfg.ServerID, cfg.ChannelID)
	return nil
}

// UpdateReportChannel はレポートチャンネルを明示的に登録し直す。最後に書いた設定が有効
func (s *ScheduleStore) UpdateReportChannel(ctx context.Context, cfg models.ReportChannelConfig) error {
	if err := validateReportChannel(cfg); err != nil {
		return err
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = s.now().UTC()
	}

	room := reportChannelRoom(cfg.ServerID)
	if err := s.store.EnsureRoom(ctx, room); err != nil {
		return err
	}

	record, err := encodeRecord(models.RecordTypeReportChannelConfig, "report-channel-config:"+cfg.ServerID+":"+uuid.NewString(), cfg.ServerID, cfg, cfg.CreatedAt)
	if err != nil {
		return err
	}
	if err := s.store.CreateRecord(ctx, room, record); err != nil {
		return err
	}

	s.Invalidate(cfg.ServerID)
	log.Printf("report channel config updated (server: %s, channel: %s)", cfg.ServerID, cfg.ChannelID)
	return nil
}

func validateReportChannel(cfg models.ReportChannelConfig) error {
	if strings.TrimSpace(cfg.ServerID) == "" {
		return &ValidationError{Field: "serverId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(cfg.ChannelID) == "" {
		return &ValidationError{Field: "channelId", Reason: "must not be empty"}
	}
	return nil
}

// ReportChannel はサーバーの有効なレポートチャンネル設定を返す
func (s *ScheduleStore) ReportChannel(ctx context.Context, serverID string) (models.ReportChannelConfig, bool, error) {
	s.mu.RLock()
	cfg, ok := s.reportChannels[serverID]
	generation := s.generation
	s.mu.RUnlock()
	if ok {
		return cfg, true, nil
	}

	cfg, found, err := s.findReportChannel(ctx, serverID)
	if err != nil || !found {
		return models.ReportChannelConfig{}, false, err
	}

	s.mu.Lock()
	if s.generation == generation {
		s.reportChannels[serverID] = cfg
	}
	s.mu.Unlock()
	return cfg, true, nil
}

// Load は起動時に全サーバーのレポートチャンネル設定をキャッシュに読み込む
func (s *ScheduleStore) Load(ctx context.Context) error {
	records, err := s.store.QueryRecords(ctx, "", RecordFilter{Type: models.RecordTypeReportChannelConfig})
	if err != nil {
		return err
	}

	configs := make(map[string]models.ReportChannelConfig)
	for _, cfg := range decodeReportChannels(records) {
		configs[cfg.ServerID] = cfg
	}

	s.mu.Lock()
	s.reportChannels = configs
	s.generation++
	s.mu.Unlock()

	log.Printf("report channel configs loaded: %d", len(configs))
	return nil
}

// Invalidate はキャッシュからサーバーの設定を取り除く
func (s *ScheduleStore) Invalidate(serverID string) {
	s.mu.Lock()
	delete(s.reportChannels, serverID)
	s.generation++
	s.mu.Unlock()
}

// findReportChannel は保存済みレコードを走査して最新の設定を探す
func (s *ScheduleStore) findReportChannel(ctx context.Context, serverID string) (models.ReportChannelConfig, bool, error) {
	records, err := s.store.QueryRecords(ctx, reportChannelRoom(serverID), RecordFilter{})
	if err != nil {
		return models.ReportChannelConfig{}, false, err
	}

	var latest models.ReportChannelConfig
	found := false
	for _, r := range records {
		if r.Type != models.RecordTypeReportChannelConfig {
			continue
		}
		for _, cfg := range decodeReportChannels([]models.Record{r}) {
			if cfg.ServerID == serverID {
				latest = cfg
				found = true
			}
		}
	}
	return latest, found, nil
}

func decodeReportChannels(records []models.Record) []models.ReportChannelConfig {
	configs := make([]models.ReportChannelConfig, 0, len(records))
	for _, r := range records {
		var cfg models.ReportChannelConfig
		if err := json.Unmarshal(r.Content, &cfg); err != nil {
			log.Printf("report channel record decode error (key: %s): %v", r.Key, err)
			continue
		}
		// サーバー未設定のものは無視する
		if !cfg.IsConfigured() {
			continue
		}
		configs = append(configs, cfg)
	}
	return configs
}

func encodeRecord(recordType, key, serverID string, payload any, createdAt time.Time) (*models.Record, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", recordType, err)
	}
	return &models.Record{
		Key:       key,
		Type:      recordType,
		ServerID:  serverID,
		Content:   datatypes.JSON(content),
		CreatedAt: createdAt,
	}, nil
}

// IsDuplicate は重複登録エラーかどうかを返す
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateSubmission)
}
