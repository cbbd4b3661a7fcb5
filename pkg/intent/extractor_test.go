package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 2026-10-14 是星期三
var base = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func TestExtract_NoDate(t *testing.T) {
	e := NewExtractor()
	for _, transcript := range []string{
		"hello, can you hear me",
		"my email is bob@example.org",
		"i would like a 15 minutes call please",
		"i may need some help",
		"i was born in march",
		"you may call me whenever",
		"we met in june",
		"",
	} {
		got := e.ExtractAt(transcript, base)
		assert.False(t, got.Has(FieldDate), "transcript %q", transcript)
	}
}

func TestExtract_Date(t *testing.T) {
	got := NewExtractor().ExtractAt("can we do next tuesday at 3pm", base)

	if assert.True(t, got.Has(FieldDate)) {
		assert.Equal(t, time.Tuesday, got.Date.Weekday())
		assert.Equal(t, 15, got.Date.Hour())
		assert.Equal(t, 0, got.Date.Minute())
		assert.True(t, got.Date.After(base))
		assert.True(t, got.Date.Before(base.AddDate(0, 0, 14)))
	}
}

func TestExtract_AmbiguousMonthWithDay(t *testing.T) {
	got := NewExtractor().ExtractAt("you may book me on march 3rd at 10am", base)

	if assert.True(t, got.Has(FieldDate)) {
		assert.Equal(t, time.March, got.Date.Month())
		assert.Equal(t, 3, got.Date.Day())
		assert.True(t, got.Date.After(base))
	}
}

func TestExtract_PastDateRejected(t *testing.T) {
	e := NewExtractor()
	assert.False(t, e.ExtractAt("it was yesterday at 3pm", base).Has(FieldDate))
	assert.True(t, e.ExtractAt("tomorrow at 3pm", base).Has(FieldDate))
}

func TestExtract_Duration(t *testing.T) {
	tests := []struct {
		transcript string
		want       int
	}{
		{"let's do 15 minutes", 15},
		{"thirty minutes is fine", 30},
		{"half an hour works", 30},
		{"maybe 45 minutes", 45},
		{"an hour please", 60},
		{"one hour", 60},
		{"30 minutes or maybe an hour", 30},
		{"a quick chat", 0},
		{"call me back in an hour", 0},
		{"ring me within 30 minutes", 0},
		{"in an hour, for 45 minutes", 45},
	}
	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ExtractAt(tt.transcript, base).Duration)
		})
	}
}

func TestExtract_EmailNameTimeZone(t *testing.T) {
	e := NewExtractor()

	got := e.ExtractAt("sure, it's alice.smith+work@example.co.uk", base)
	assert.Equal(t, "alice.smith+work@example.co.uk", got.Email)

	got = e.ExtractAt("My Name Is   bob   jones", base)
	assert.Equal(t, "Bob Jones", got.Name)

	got = e.ExtractAt("i'm in america/new_york", base)
	assert.Equal(t, "America/New_York", got.TimeZone)

	got = e.ExtractAt("use australia/melbourne please", base)
	assert.Equal(t, "Australia/Melbourne", got.TimeZone)

	got = e.ExtractAt("i live in europe/isle_of_man", base)
	assert.Equal(t, "Europe/Isle_of_Man", got.TimeZone)

	got = e.ExtractAt("america/port-au-prince", base)
	assert.Equal(t, "America/Port-au-Prince", got.TimeZone)

	got = e.ExtractAt("antarctica/mcmurdo", base)
	assert.Equal(t, "Antarctica/McMurdo", got.TimeZone)

	got = e.ExtractAt("europe/atlantis", base)
	assert.Empty(t, got.TimeZone)

	got = e.ExtractAt("hello there", base)
	assert.True(t, got.Empty())
}

func TestExtract_FullScenario(t *testing.T) {
	e := NewExtractor()
	var b BookingIntent
	for _, transcript := range []string{
		"my name is alice smith",
		"email alice@example.com",
		"book next tuesday at 3pm for 30 minutes",
	} {
		b.Merge(e.ExtractAt(transcript, base))
	}

	assert.Equal(t, "Alice Smith", b.Name)
	assert.Equal(t, "alice@example.com", b.Email)
	assert.Equal(t, 30, b.Duration)
	if assert.True(t, b.Has(FieldDate)) {
		assert.Equal(t, time.Tuesday, b.Date.Weekday())
		assert.Equal(t, 15, b.Date.Hour())
	}
	assert.True(t, DefaultPredicate.Satisfied(b))
}
