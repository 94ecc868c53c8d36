package services

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"slack-checkin-notify/models"
)

// RunnerState はジョブランナーの登録状態
type RunnerState string

const (
	StateUnregistered RunnerState = "UNREGISTERED"
	StateRegistering  RunnerState = "REGISTERING"
	StateActive       RunnerState = "ACTIVE"
	StateFailed       RunnerState = "FAILED"
)

// ReminderWorkerName はリマインダーワーカーの登録名
const ReminderWorkerName = "checkin-reminder-worker"

// ReminderTaskTags はこのランナーが作るタスクのタグ
var ReminderTaskTags = []string{"checkin", "reminder", "repeat"}

// DefaultPollInterval はスケジュール確認の間隔
const DefaultPollInterval = time.Minute

// RetryPolicy はタスク登録の再試行設定
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultRetryPolicy は 1秒から倍々で最大30秒、8回まで
var DefaultRetryPolicy = RetryPolicy{
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	MaxAttempts:  8,
}

// Delay は attempt 回目（1始まり）の失敗後に待つ時間を返す
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// JobRunner は定期的にスケジュールを評価してリマインダーを送る
type JobRunner struct {
	host      TaskHost
	schedules *ScheduleStore
	registry  *TeamRegistry
	messenger Messenger
	interval  time.Duration
	retry     RetryPolicy

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state RunnerState

	// 以下は running を取得した実行だけが触る
	running    atomic.Bool
	lastTick   time.Time
	dispatched map[string]time.Time
}

// NewJobRunner はジョブランナーを作成する
func NewJobRunner(host TaskHost, schedules *ScheduleStore, registry *TeamRegistry, messenger Messenger, interval time.Duration) *JobRunner {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &JobRunner{
		host:       host,
		schedules:  schedules,
		registry:   registry,
		messenger:  messenger,
		interval:   interval,
		retry:      DefaultRetryPolicy,
		now:        time.Now,
		sleep:      sleepContext,
		state:      StateUnregistered,
		dispatched: make(map[string]time.Time),
	}
}

// WithRetryPolicy は再試行設定を差し替える
func (r *JobRunner) WithRetryPolicy(policy RetryPolicy) *JobRunner {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	r.retry = policy
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State は現在の登録状態を返す
func (r *JobRunner) State() RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *JobRunner) setState(state RunnerState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

// Register はタスク基盤にリマインダーの定期タスクを登録する。
// 基盤の準備ができるまで指数バックオフで再試行し、失敗しても他の機能には影響しない
func (r *JobRunner) Register(ctx context.Context) error {
	r.setState(StateRegistering)

	var lastErr error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		lastErr = r.tryRegister(ctx)
		if lastErr == nil {
			r.setState(StateActive)
			log.Printf("checkin reminder task registered (interval: %s)", r.interval)
			return nil
		}

		log.Printf("checkin reminder task register failed (attempt %d/%d): %v", attempt, r.retry.MaxAttempts, lastErr)
		if attempt == r.retry.MaxAttempts {
			break
		}

		if err := r.sleep(ctx, r.retry.Delay(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	r.setState(StateFailed)
	log.Printf("checkin reminders are disabled: %v", lastErr)
	return unavailable("task-host", lastErr)
}

func (r *JobRunner) tryRegister(ctx context.Context) error {
	if !r.host.Ready() {
		return ErrTaskHostNotReady
	}

	// 再起動時に同じタスクが二重に動かないよう、先に自分のタグのタスクを消す
	tasks, err := r.host.ListTasks(ctx, ReminderTaskTags)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := r.host.DeleteTask(ctx, task.ID); err != nil {
			return err
		}
	}

	if err := r.host.RegisterWorker(ReminderWorkerName, r); err != nil {
		return err
	}

	_, err = r.host.CreatePeriodicTask(ctx, models.Task{
		Name:           ReminderWorkerName,
		Tags:           joinTags(ReminderTaskTags),
		IntervalMillis: r.interval.Milliseconds(),
	})
	return err
}

// Execute は1回分のチェック。前回の実行が終わっていなければ何もしない
func (r *JobRunner) Execute(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		log.Printf("previous checkin tick is still running, skipped")
		return nil
	}
	defer r.running.Store(false)

	now := r.now().UTC()

	// 前回の実行から時間が空いた場合はその分だけ窓を広げる
	window := r.interval
	if !r.lastTick.IsZero() {
		if elapsed := now.Sub(r.lastTick); elapsed > window {
			window = elapsed
		}
	}
	r.lastTick = now

	schedules, err := r.schedules.ListAllSchedules(ctx)
	if err != nil {
		log.Printf("checkin schedule list error: %v", err)
		return err
	}

	sent := 0
	for _, schedule := range schedules {
		instant, due := IsDue(now, schedule, window, r.dispatched[schedule.ScheduleID])
		if !due {
			continue
		}

		if err := r.dispatch(ctx, schedule); err != nil {
			log.Printf("reminder send error (schedule id: %s): %v", schedule.ScheduleID, err)
			continue
		}

		r.dispatched[schedule.ScheduleID] = instant
		sent++
		log.Printf("reminder sent (schedule id: %s, channel: %s, instant: %s)", schedule.ScheduleID, schedule.ChannelID, instant.Format(time.RFC3339))
	}

	if sent > 0 {
		log.Printf("checkin tick done (schedules: %d, reminders sent: %d)", len(schedules), sent)
	}
	return nil
}

func (r *JobRunner) dispatch(ctx context.Context, schedule models.CheckInSchedule) error {
	members := r.reminderTargets(ctx, schedule)
	text := BuildReminderMessage(schedule, members)

	if err := r.messenger.SendMessage(ctx, schedule.ChannelID, text); err != nil {
		return unavailable("messaging", err)
	}
	return nil
}

// reminderTargets はメンションするメンバーを返す。個人向けのスケジュールはその人だけ
func (r *JobRunner) reminderTargets(ctx context.Context, schedule models.CheckInSchedule) []models.TeamMember {
	if r.registry == nil {
		return nil
	}

	sections, err := r.registry.ListMembers(ctx, schedule.ServerID)
	if err != nil {
		log.Printf("team member list error (server: %s): %v", schedule.ServerID, err)
		return nil
	}

	members := []models.TeamMember{}
	for _, section := range sections {
		for _, m := range section.Members {
			if schedule.TeamMemberID != "" && m.ID != schedule.TeamMemberID {
				continue
			}
			members = append(members, m)
		}
	}
	return members
}
