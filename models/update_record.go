package models

import (
	"sort"
	"time"
)

// UpdateRecord の種類
const (
	UpdateKindCheckInConfig = "checkin-config"
	UpdateKindStatus        = "status-update"
)

// UpdateRecord はメンバーから受け取り項目抽出済みの投稿
type UpdateRecord struct {
	ID              string            `json:"id"`
	Kind            string            `json:"kind"`
	MemberRef       string            `json:"memberRef"`
	ScheduleID      string            `json:"scheduleId,omitempty"`
	RawText         string            `json:"rawText"`
	ExtractedFields map[string]string `json:"extractedFields"`
	FieldOrder      []string          `json:"fieldOrder,omitempty"` // 登録された項目の順序
	Timestamp       time.Time         `json:"timestamp"`
	ServerID        string            `json:"serverId"`
}

// OrderedKeys は FieldOrder の順で項目名を返す。順序にない項目は名前順で後ろに付ける
func (u UpdateRecord) OrderedKeys() []string {
	keys := make([]string, 0, len(u.ExtractedFields))
	seen := make(map[string]bool, len(u.ExtractedFields))
	for _, k := range u.FieldOrder {
		if _, ok := u.ExtractedFields[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}

	var rest []string
	for k := range u.ExtractedFields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
