package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定
type Config struct {
	Port               string
	DatabasePath       string
	SlackBotToken      string
	SlackSigningSecret string
	LLMAPIURL          string
	LLMAPIKey          string
	LLMModel           string
	GithubToken        string
	PollInterval       time.Duration // ジョブランナーの実行間隔
	RegisterMaxRetries int           // タスク登録の最大試行回数
}

// Load は .env と環境変数から設定を読み込む
func Load() Config {
	// .env がなくても環境変数だけで動くようにする
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not loaded: %v", err)
	}

	pollMin := readIntEnv("CHECKIN_POLL_INTERVAL_MIN", 1)
	if pollMin <= 0 {
		pollMin = 1
	}

	return Config{
		Port:               getenvDefault("PORT", "8080"),
		DatabasePath:       getenvDefault("DATABASE_PATH", "checkin.db"),
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		LLMAPIURL:          getenvDefault("LLM_API_URL", "https://api.openai.com/v1"),
		LLMAPIKey:          os.Getenv("LLM_API_KEY"),
		LLMModel:           getenvDefault("LLM_MODEL", "gpt-4o-mini"),
		GithubToken:        os.Getenv("GITHUB_TOKEN"),
		PollInterval:       time.Duration(pollMin) * time.Minute,
		RegisterMaxRetries: readIntEnv("CHECKIN_REGISTER_MAX_RETRIES", 8),
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
