package services

import (
	"context"
	"fmt"
	"strings"
)

// Extractor は自由記述のテキストを分類・構造化する
type Extractor interface {
	Classify(ctx context.Context, question, text string) (bool, error)
	Extract(ctx context.Context, schema []string, text string) (map[string]string, error)
}

// LLMExtractor は生成テキストモデルを使った Extractor 実装
type LLMExtractor struct {
	Generator TextGenerator
}

// NewLLMExtractor は Extractor を作成する
func NewLLMExtractor(generator TextGenerator) *LLMExtractor {
	return &LLMExtractor{Generator: generator}
}

// Classify はテキストが question に当てはまるかを YES/NO で判定させる
func (e *LLMExtractor) Classify(ctx context.Context, question, text string) (bool, error) {
	prompt := fmt.Sprintf(`Answer with only YES or NO.
Question: %s

Message:
%s`, question, text)

	out, err := e.Generator.Complete(ctx, prompt)
	if err != nil {
		return false, unavailable("generative-text", err)
	}

	answer := strings.ToUpper(strings.Trim(strings.TrimSpace(out), "`*\"'. "))
	switch {
	case strings.HasPrefix(answer, "YES"):
		return true, nil
	case strings.HasPrefix(answer, "NO"):
		return false, nil
	default:
		return false, &ExtractionError{Raw: out}
	}
}

// Extract は schema の各項目をテキストから抜き出させる
func (e *LLMExtractor) Extract(ctx context.Context, schema []string, text string) (map[string]string, error) {
	var b strings.Builder
	b.WriteString("Extract the following fields from the message.\n")
	b.WriteString("Respond with exactly one line per field in the form `field: value` and nothing else.\n")
	b.WriteString("Use `none` when the message does not mention a field.\n\nFields:\n")
	for _, field := range schema {
		fmt.Fprintf(&b, "- %s\n", field)
	}
	fmt.Fprintf(&b, "\nMessage:\n%s", text)

	out, err := e.Generator.Complete(ctx, b.String())
	if err != nil {
		return nil, unavailable("generative-text", err)
	}

	return ParseExtraction(schema, out)
}

// ParseExtraction は `field: value` 形式の出力を schema のキーで取り出す
func ParseExtraction(schema []string, raw string) (map[string]string, error) {
	lines := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		lines[normalizeFieldKey(key)] = cleanFieldValue(value)
	}

	fields := make(map[string]string, len(schema))
	missing := []string{}
	for _, field := range schema {
		value, ok := lines[normalizeFieldKey(field)]
		if !ok {
			missing = append(missing, field)
			continue
		}
		fields[field] = value
	}

	if len(missing) > 0 {
		return nil, &ExtractionError{Missing: missing, Raw: raw}
	}
	return fields, nil
}

func normalizeFieldKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.TrimLeft(key, "-*• ")
	key = strings.Trim(key, "`\"'")
	key = strings.ReplaceAll(key, "_", "-")
	key = strings.ReplaceAll(key, " ", "-")
	return key
}

func cleanFieldValue(value string) string {
	value = strings.Trim(strings.TrimSpace(value), "`\"'")
	switch strings.ToLower(value) {
	case "none", "n/a", "null", "not specified", "unknown", "-":
		return ""
	}
	return value
}
