package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"slack-checkin-notify/config"
	"slack-checkin-notify/handlers"
	"slack-checkin-notify/models"
	"slack-checkin-notify/services"
)

func main() {
	cfg := config.Load()

	// 重複キーを gorm.ErrDuplicatedKey として受け取るため TranslateError を有効にする
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&models.Room{}, &models.Record{}, &models.Task{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := services.NewGormRecordStore(db)
	messenger := services.NewSlackMessenger(cfg.SlackBotToken)
	generator := services.NewOpenAIClient(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMModel)

	schedules := services.NewScheduleStore(store)
	if err := schedules.Load(ctx); err != nil {
		log.Printf("failed to load report channel configs: %v", err)
	}

	registry := services.NewTeamRegistry(store, services.NewGitHubResolver(cfg.GithubToken))
	collector := services.NewUpdateCollector(store, services.NewLLMExtractor(generator), messenger, registry)
	reports := services.NewReportGenerator(schedules, store, generator, messenger)

	host := services.NewCronTaskHost(db)
	runner := services.NewJobRunner(host, schedules, registry, messenger, cfg.PollInterval).
		WithRetryPolicy(services.RetryPolicy{
			InitialDelay: services.DefaultRetryPolicy.InitialDelay,
			MaxDelay:     services.DefaultRetryPolicy.MaxDelay,
			MaxAttempts:  cfg.RegisterMaxRetries,
		})

	// タスク基盤の準備を待ちながら登録する。失敗してもコマンドは使える
	go func() {
		if err := runner.Register(ctx); err != nil {
			log.Printf("checkin reminder registration failed: %v", err)
		}
	}()

	if err := host.Start(); err != nil {
		log.Printf("failed to start task host: %v", err)
	}
	defer host.Stop()

	app := handlers.NewApp(schedules, registry, collector, reports, messenger, cfg.SlackSigningSecret)

	r := gin.Default()
	r.POST("/slack/command", handlers.HandleSlackCommand(app))
	r.POST("/slack/events", handlers.HandleSlackEvents(app))
	r.GET("/healthz", handlers.HandleHealth(runner))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()
	log.Printf("server started on :%s", cfg.Port)

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	// 受け付け済みのコマンドを最後まで処理する
	app.Wait()
}
