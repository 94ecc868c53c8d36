package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateSubmission は同一識別子のレコードが既に存在する場合のエラー
var ErrDuplicateSubmission = errors.New("duplicate submission")

// ErrConfigurationMissing はレポートチャンネルが未設定の場合のエラー
var ErrConfigurationMissing = errors.New("report channel is not configured")

// ValidationError はストア操作への不正な入力
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExtractionError は生成テキストの出力を期待した形式で解析できなかった場合のエラー
type ExtractionError struct {
	Missing []string
	Raw     string
}

func (e *ExtractionError) Error() string {
	if len(e.Missing) == 0 {
		return "cannot parse extraction output"
	}
	return fmt.Sprintf("cannot parse extraction output: missing %s", strings.Join(e.Missing, ", "))
}

// CollaboratorUnavailable は外部コラボレーター（Slack、LLM、タスク基盤）に到達できない場合のエラー
type CollaboratorUnavailable struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorUnavailable) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorUnavailable) Unwrap() error {
	return e.Err
}

func unavailable(collaborator string, err error) error {
	return &CollaboratorUnavailable{Collaborator: collaborator, Err: err}
}
