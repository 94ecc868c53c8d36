package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-checkin-notify/models"
)

const configExtraction = `channel-for-updates: #team-updates
check-in-type: STANDUP
channel-for-check-ins: daily-standup
frequency: WEEKDAYS
time: 09:00`

type collectorFixture struct {
	collector *UpdateCollector
	store     *GormRecordStore
	registry  *TeamRegistry
	generator *fakeGenerator
	messenger *fakeMessenger
}

func newCollectorFixture(t *testing.T, responses ...string) collectorFixture {
	db := setupTestDB(t)
	store := NewGormRecordStore(db)
	generator := &fakeGenerator{responses: responses}
	messenger := &fakeMessenger{channels: []Channel{
		{ID: "C100", Name: "team-updates", IsText: true},
		{ID: "C200", Name: "Daily-Standup", IsText: true},
	}}
	registry := NewTeamRegistry(store, nil)
	collector := NewUpdateCollector(store, NewLLMExtractor(generator), messenger, registry)
	collector.now = fixedClock(time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))

	return collectorFixture{collector: collector, store: store, registry: registry, generator: generator, messenger: messenger}
}

func (f collectorFixture) storedUpdates(t *testing.T, serverID string) []models.Record {
	records, err := f.store.QueryRecords(context.Background(), updateRoom(serverID), RecordFilter{Type: models.RecordTypeUpdate})
	require.NoError(t, err)
	return records
}

func TestUpdateCollector_NotAnUpdateStoresNothing(t *testing.T) {
	f := newCollectorFixture(t, "NO")

	result, err := f.collector.Ingest(context.Background(), "T1", "U1", "How do I set up a check-in?")
	require.NoError(t, err)

	assert.False(t, result.Accepted())
	assert.Equal(t, GuidanceCheckInConfig, result.Guidance)
	assert.Empty(t, f.storedUpdates(t, "T1"))
	// 分類だけで抽出は呼ばない
	assert.Len(t, f.generator.prompts, 1)
}

func TestUpdateCollector_IngestResolvesChannels(t *testing.T) {
	f := newCollectorFixture(t, "YES", configExtraction)

	result, err := f.collector.Ingest(context.Background(), "T1", "U1", "#team-updates に共有、#daily-standup で平日9時にスタンドアップ")
	require.NoError(t, err)
	require.True(t, result.Accepted())

	record := result.Record
	assert.Equal(t, models.UpdateKindCheckInConfig, record.Kind)
	assert.Equal(t, "C100", record.ExtractedFields[FieldChannelForUpdates])
	assert.Equal(t, "C200", record.ExtractedFields[FieldChannelForCheckIns])
	assert.Equal(t, "WEEKDAYS", record.ExtractedFields[FieldFrequency])
	assert.Equal(t, "09:00", record.ExtractedFields[FieldTime])
	assert.Equal(t, "U1", record.MemberRef)

	stored := f.storedUpdates(t, "T1")
	require.Len(t, stored, 1)
	assert.Equal(t, "checkin-update:"+record.ID, stored[0].Key)
}

func TestUpdateCollector_ChannelListFailureKeepsNames(t *testing.T) {
	f := newCollectorFixture(t, "YES", configExtraction)
	f.messenger.listErr = errors.New("slack is down")

	result, err := f.collector.Ingest(context.Background(), "T1", "U1", "config")
	require.NoError(t, err)
	require.True(t, result.Accepted())
	assert.Equal(t, "#team-updates", result.Record.ExtractedFields[FieldChannelForUpdates])
	assert.Equal(t, "daily-standup", result.Record.ExtractedFields[FieldChannelForCheckIns])
}

func TestUpdateCollector_ExtractionErrorStoresNothing(t *testing.T) {
	f := newCollectorFixture(t, "YES", "sorry, I cannot help with that")

	_, err := f.collector.Ingest(context.Background(), "T1", "U1", "config")
	var extractionErr *ExtractionError
	assert.True(t, errors.As(err, &extractionErr))
	assert.Empty(t, f.storedUpdates(t, "T1"))
}

func TestUpdateCollector_RejectsEmptyText(t *testing.T) {
	f := newCollectorFixture(t)

	_, err := f.collector.Ingest(context.Background(), "T1", "U1", "   ")
	var validationErr *ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Empty(t, f.generator.prompts)
}

func TestUpdateCollector_GeneratorUnavailable(t *testing.T) {
	f := newCollectorFixture(t)
	f.generator.err = errors.New("timeout")

	_, err := f.collector.IngestStatusUpdate(context.Background(), "T1", "U1", "", "進捗です")
	var unavailableErr *CollaboratorUnavailable
	assert.True(t, errors.As(err, &unavailableErr))
}

func TestUpdateCollector_StatusUpdateUsesMemberFormat(t *testing.T) {
	f := newCollectorFixture(t, "NO", "YES", "done: API\ndoing: tests")
	ctx := context.Background()

	_, err := f.registry.AddMember(ctx, "T1", "backend", MemberIdentity{SlackUserID: "U1"}, []string{"done", "doing"})
	require.NoError(t, err)

	// 進捗として読めない場合は登録項目を案内する
	result, err := f.collector.IngestStatusUpdate(ctx, "T1", "U1", "", "help me")
	require.NoError(t, err)
	assert.False(t, result.Accepted())
	assert.Contains(t, result.Guidance, "done / doing")

	result, err = f.collector.IngestStatusUpdate(ctx, "T1", "U1", "s1", "API は終わり、テストを書いています")
	require.NoError(t, err)
	require.True(t, result.Accepted())
	assert.Equal(t, models.UpdateKindStatus, result.Record.Kind)
	assert.Equal(t, "s1", result.Record.ScheduleID)
	assert.Equal(t, map[string]string{"done": "API", "doing": "tests"}, result.Record.ExtractedFields)
	assert.Equal(t, []string{"done", "doing"}, result.Record.FieldOrder)
	assert.Contains(t, f.generator.prompts[2], "- done\n- doing\n")

	assert.Len(t, f.storedUpdates(t, "T1"), 1)
}

func TestUpdateCollector_StatusUpdateDefaultFormat(t *testing.T) {
	f := newCollectorFixture(t, "YES", "progress: API\nblockers: none\nnext steps: tests")

	result, err := f.collector.IngestStatusUpdate(context.Background(), "T1", "U404", "", "API を実装しました")
	require.NoError(t, err)
	require.True(t, result.Accepted())
	assert.Equal(t, "", result.Record.ExtractedFields["blockers"])
	assert.Equal(t, "tests", result.Record.ExtractedFields["next steps"])
}
