package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"slack-checkin-notify/models"
)

// ErrTaskHostNotReady はタスク基盤がまだ起動していない場合のエラー
var ErrTaskHostNotReady = errors.New("task host is not ready")

// TaskWorker は定期タスクの実行ごとに呼ばれる
type TaskWorker interface {
	Execute(ctx context.Context) error
}

// TaskWorkerFunc は関数を TaskWorker として扱う
type TaskWorkerFunc func(ctx context.Context) error

func (f TaskWorkerFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// TaskHost は定期タスクを管理するホスト側のタスク基盤
type TaskHost interface {
	Ready() bool
	RegisterWorker(name string, worker TaskWorker) error
	CreatePeriodicTask(ctx context.Context, task models.Task) (string, error)
	ListTasks(ctx context.Context, tags []string) ([]models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// CronTaskHost は robfig/cron でタスクを起動し、記述子を DB に保存する TaskHost 実装
type CronTaskHost struct {
	db   *gorm.DB
	cron *cron.Cron
	now  func() time.Time

	mu      sync.Mutex
	workers map[string]TaskWorker
	entries map[string]cron.EntryID
	ready   atomic.Bool
}

// NewCronTaskHost はタスクホストを作成する。Start するまで Ready は false
func NewCronTaskHost(db *gorm.DB) *CronTaskHost {
	logger := cron.PrintfLogger(log.Default())
	return &CronTaskHost{
		db: db,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		now:     time.Now,
		workers: make(map[string]TaskWorker),
		entries: make(map[string]cron.EntryID),
	}
}

// Start は保存済みのタスクを復元してスケジューラーを起動する
func (h *CronTaskHost) Start() error {
	var tasks []models.Task
	if err := h.db.Find(&tasks).Error; err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	for _, task := range tasks {
		h.schedule(task)
	}

	h.cron.Start()
	h.ready.Store(true)
	log.Printf("task host started (restored tasks: %d)", len(tasks))
	return nil
}

// Stop はスケジューラーを止め、実行中のジョブの終了を待つ
func (h *CronTaskHost) Stop() {
	h.ready.Store(false)
	<-h.cron.Stop().Done()
}

// Ready はタスク基盤が利用可能かを返す
func (h *CronTaskHost) Ready() bool {
	return h.ready.Load()
}

// RegisterWorker は名前でワーカーを登録する
func (h *CronTaskHost) RegisterWorker(name string, worker TaskWorker) error {
	if name == "" || worker == nil {
		return errors.New("worker name and worker are required")
	}

	h.mu.Lock()
	h.workers[name] = worker
	h.mu.Unlock()
	return nil
}

// CreatePeriodicTask はタスク記述子を保存して定期実行を開始する
func (h *CronTaskHost) CreatePeriodicTask(ctx context.Context, task models.Task) (string, error) {
	if !h.Ready() {
		return "", ErrTaskHostNotReady
	}
	if task.IntervalMillis <= 0 {
		return "", fmt.Errorf("invalid task interval: %d", task.IntervalMillis)
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := h.now()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := h.db.WithContext(ctx).Create(&task).Error; err != nil {
		return "", fmt.Errorf("create task %s: %w", task.Name, err)
	}

	h.schedule(task)
	log.Printf("periodic task created (id: %s, name: %s, interval: %s, tags: %s)", task.ID, task.Name, task.Interval(), task.Tags)
	return task.ID, nil
}

// ListTasks は指定した全てのタグを持つタスクを返す
func (h *CronTaskHost) ListTasks(ctx context.Context, tags []string) ([]models.Task, error) {
	if !h.Ready() {
		return nil, ErrTaskHostNotReady
	}

	var all []models.Task
	if err := h.db.WithContext(ctx).Order("created_at asc").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := []models.Task{}
	for _, t := range all {
		if t.HasTags(tags) {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// DeleteTask はタスクの定期実行を止めて記述子を削除する
func (h *CronTaskHost) DeleteTask(ctx context.Context, id string) error {
	if !h.Ready() {
		return ErrTaskHostNotReady
	}

	h.mu.Lock()
	if entryID, ok := h.entries[id]; ok {
		h.cron.Remove(entryID)
		delete(h.entries, id)
	}
	h.mu.Unlock()

	if err := h.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{}).Error; err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	log.Printf("periodic task deleted (id: %s)", id)
	return nil
}

func (h *CronTaskHost) schedule(task models.Task) {
	interval := task.Interval()
	if interval < time.Second {
		interval = time.Second
	}

	taskID, name := task.ID, task.Name
	entryID := h.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		h.run(context.Background(), taskID, name)
	}))

	h.mu.Lock()
	h.entries[taskID] = entryID
	h.mu.Unlock()
}

// run はワーカーを実行して最終実行時刻を記録する
func (h *CronTaskHost) run(ctx context.Context, taskID, name string) {
	h.mu.Lock()
	worker := h.workers[name]
	h.mu.Unlock()

	if worker == nil {
		log.Printf("no worker registered for task %s (id: %s)", name, taskID)
		return
	}

	if err := worker.Execute(ctx); err != nil {
		log.Printf("task %s execute error (id: %s): %v", name, taskID, err)
	}

	now := h.now()
	if err := h.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", taskID).
		Updates(map[string]interface{}{"last_run_at": now, "updated_at": now}).Error; err != nil {
		log.Printf("task update error (id: %s): %v", taskID, err)
	}
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}
