package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTask_Tags(t *testing.T) {
	task := Task{Tags: "checkin, reminder,repeat", IntervalMillis: 90000}

	assert.Equal(t, []string{"checkin", "reminder", "repeat"}, task.TagList())
	assert.True(t, task.HasTags([]string{"reminder", "checkin"}))
	assert.True(t, task.HasTags(nil))
	assert.False(t, task.HasTags([]string{"checkin", "cleanup"}))
	assert.Equal(t, 90*time.Second, task.Interval())

	empty := Task{}
	assert.Empty(t, empty.TagList())
	assert.False(t, empty.HasTags([]string{"checkin"}))
}
