package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"slack-checkin-notify/services"
)

// ActionContext は1回のコマンド・メッセージ処理に必要な情報
type ActionContext struct {
	ServerID  string
	ChannelID string
	UserID    string
	MessageID string
	Text      string   // サブコマンドを除いた本文
	Args      []string // 本文をクォート対応で分割したもの

	handled map[string]bool // リクエスト単位の実行済みフラグ
}

// Callback はユーザーへの返信を送る
type Callback func(text string) error

// Action はホストから呼ばれるコマンド
type Action interface {
	Name() string
	Usage() string
	Validate(ac *ActionContext) bool
	Handle(ctx context.Context, ac *ActionContext, cb Callback) bool
}

// deferredAction は外部サービスを何度も呼ぶため、受け付けだけ先に返して裏で処理するアクション
type deferredAction interface {
	Deferred() bool
}

func isDeferred(action Action) bool {
	d, ok := action.(deferredAction)
	return ok && d.Deferred()
}

// AcceptedReply は裏で処理するコマンドへの最初の応答
const AcceptedReply = "⏳ 受け付けました。処理が終わったら結果をお知らせします。"

// DefaultAsyncTimeout は裏で処理するアクション1回あたりの上限
const DefaultAsyncTimeout = 2 * time.Minute

// App はアクションが使うサービスとアクション一覧を保持する
type App struct {
	Schedules     *services.ScheduleStore
	Registry      *services.TeamRegistry
	Collector     *services.UpdateCollector
	Reports       *services.ReportGenerator
	Messenger     services.Messenger
	SigningSecret string
	Guard         *MessageGuard
	AsyncTimeout  time.Duration

	now     func() time.Time
	actions map[string]Action
	order   []string
	running sync.WaitGroup
}

// NewApp はアクションを登録した App を作成する
func NewApp(schedules *services.ScheduleStore, registry *services.TeamRegistry, collector *services.UpdateCollector,
	reports *services.ReportGenerator, messenger services.Messenger, signingSecret string) *App {
	app := &App{
		Schedules:     schedules,
		Registry:      registry,
		Collector:     collector,
		Reports:       reports,
		Messenger:     messenger,
		SigningSecret: signingSecret,
		Guard:         NewMessageGuard(10 * time.Minute),
		AsyncTimeout:  DefaultAsyncTimeout,
		now:           time.Now,
		actions:       make(map[string]Action),
	}

	app.register(&AddMemberAction{app: app})
	app.register(&ListMembersAction{app: app})
	app.register(&RecordScheduleAction{app: app})
	app.register(&CreateScheduleAction{app: app})
	app.register(&ListSchedulesAction{app: app})
	app.register(&SetReportChannelAction{app: app})
	app.register(&GenerateReportAction{app: app})
	app.register(&SubmitUpdateAction{app: app})
	return app
}

func (app *App) register(action Action) {
	app.actions[action.Name()] = action
	app.order = append(app.order, action.Name())
}

// Action は名前でアクションを返す
func (app *App) Action(name string) (Action, bool) {
	action, ok := app.actions[name]
	return action, ok
}

// runAsync はリクエストが終わっても切れないコンテキストでアクションを実行する。
// 返信先は実行用のコンテキストを受け取る newCallback で作る
func (app *App) runAsync(parent context.Context, action Action, ac *ActionContext, newCallback func(ctx context.Context) Callback) {
	app.running.Add(1)
	go func() {
		defer app.running.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), app.AsyncTimeout)
		defer cancel()

		action.Handle(ctx, ac, newCallback(ctx))
	}()
}

// Wait は裏で実行中のアクションが終わるまで待つ
func (app *App) Wait() {
	app.running.Wait()
}

// once は同じメッセージに対するアクションの二重実行を防ぐ。初回だけ true を返す
func (app *App) once(ac *ActionContext, name string) bool {
	if ac.handled == nil {
		ac.handled = make(map[string]bool)
	}
	if ac.handled[name] {
		return false
	}
	ac.handled[name] = true

	if ac.MessageID == "" || app.Guard == nil {
		return true
	}
	if !app.Guard.Claim(name + ":" + ac.MessageID) {
		log.Printf("duplicate message skipped (action: %s, message id: %s)", name, ac.MessageID)
		return false
	}
	return true
}

// MessageGuard は再送されたメッセージを一定時間覚えておく
type MessageGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMessageGuard はガードを作成する
func NewMessageGuard(ttl time.Duration) *MessageGuard {
	return &MessageGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Claim はキーが初めてなら記録して true を返す
func (g *MessageGuard) Claim(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, at := range g.seen {
		if now.Sub(at) > g.ttl {
			delete(g.seen, k)
		}
	}

	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = now
	return true
}

// replyForError はエラーをユーザー向けのメッセージに変換する
func replyForError(err error) string {
	var validationErr *services.ValidationError
	var extractionErr *services.ExtractionError
	var unavailableErr *services.CollaboratorUnavailable

	switch {
	case errors.As(err, &validationErr):
		return fmt.Sprintf("入力内容に誤りがあります（%s）。内容を確認してもう一度お試しください。", validationErr.Error())
	case errors.As(err, &extractionErr):
		return "内容をうまく読み取れませんでした。形式を確認してもう一度送ってください。"
	case services.IsDuplicate(err):
		return "この内容は既に登録済みです。"
	case errors.Is(err, services.ErrConfigurationMissing):
		return "レポートチャンネルがまだ設定されていません。`/checkin set-report-channel #channel` で設定してください。"
	case errors.As(err, &unavailableErr):
		return "申し訳ありません、現在外部サービスに接続できません。しばらくしてからもう一度お試しください。"
	default:
		return "処理中にエラーが発生しました。"
	}
}

func reply(cb Callback, text string) {
	if err := cb(text); err != nil {
		log.Printf("reply send error: %v", err)
	}
}
