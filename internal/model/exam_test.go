package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExamWindowChecks(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exam := &Exam{StartTime: start, EndTime: start.Add(time.Hour)}

	assert.True(t, exam.NotYetOpen(start.Add(-time.Minute)))
	assert.False(t, exam.NotYetOpen(start))

	assert.True(t, exam.WindowOpen(start))
	assert.True(t, exam.WindowOpen(start.Add(time.Hour))) // inclusive end
	assert.True(t, exam.WindowOpen(start.Add(30*time.Minute)))

	assert.True(t, exam.Closed(start.Add(time.Hour+time.Second)))
	assert.False(t, exam.Closed(start.Add(time.Hour)))
}
