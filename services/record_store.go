package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"slack-checkin-notify/models"
)

// ErrRoomNotFound は存在しないルームへの書き込み
var ErrRoomNotFound = errors.New("room not found")

// RecordFilter はレコード検索条件。ゼロ値の項目は条件に含めない
type RecordFilter struct {
	Type     string
	ServerID string
	Since    time.Time
	Until    time.Time
}

// RecordStore はルーム単位で追記・検索できるレコードストア
type RecordStore interface {
	EnsureRoom(ctx context.Context, room string) error
	CreateRecord(ctx context.Context, room string, record *models.Record) error
	QueryRecords(ctx context.Context, room string, filter RecordFilter) ([]models.Record, error)
}

// GormRecordStore は gorm 上の RecordStore 実装
type GormRecordStore struct {
	DB *gorm.DB
}

// NewGormRecordStore はストアを作成する。db は TranslateError を有効にして開くこと
func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{DB: db}
}

// EnsureRoom はルームを作成する。既に存在する場合も成功扱い
func (s *GormRecordStore) EnsureRoom(ctx context.Context, room string) error {
	err := s.DB.WithContext(ctx).Create(&models.Room{ID: room, CreatedAt: time.Now()}).Error
	if err == nil || errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return fmt.Errorf("ensure room %s: %w", room, err)
}

// CreateRecord はルームにレコードを追記する
func (s *GormRecordStore) CreateRecord(ctx context.Context, room string, record *models.Record) error {
	db := s.DB.WithContext(ctx)

	// 参照先のないレコードは作らない
	var count int64
	if err := db.Model(&models.Room{}).Where("id = ?", room).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup room %s: %w", room, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}

	record.RoomID = room
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.CreatedAt = record.CreatedAt.UTC()

	if err := db.Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateSubmission, record.Key)
		}
		return fmt.Errorf("create record in %s: %w", room, err)
	}
	return nil
}

// QueryRecords は挿入順にレコードを返す。room が空の場合は全ルームを対象にする
func (s *GormRecordStore) QueryRecords(ctx context.Context, room string, filter RecordFilter) ([]models.Record, error) {
	query := s.DB.WithContext(ctx).Model(&models.Record{})

	if room != "" {
		query = query.Where("room_id = ?", room)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.ServerID != "" {
		query = query.Where("server_id = ?", filter.ServerID)
	}

	var found []models.Record
	if err := query.Order("id asc").Find(&found).Error; err != nil {
		return nil, fmt.Errorf("query records in %s: %w", room, err)
	}

	// sqlite の時刻は文字列比較になるため期間の絞り込みはここで行う
	records := make([]models.Record, 0, len(found))
	for _, r := range found {
		if !filter.Since.IsZero() && r.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && !r.CreatedAt.Before(filter.Until) {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}
