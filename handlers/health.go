package handlers

import (
	"net/http"

	"slack-checkin-notify/services"

	"github.com/gin-gonic/gin"
)

// RunnerStatus はジョブランナーの状態を返す
type RunnerStatus interface {
	State() services.RunnerState
}

// HandleHealth はプロセスとジョブランナーの状態を返す
func HandleHealth(runner RunnerStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := runner.State()
		status := http.StatusOK
		if state == services.StateFailed {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "runner": string(state)})
	}
}
