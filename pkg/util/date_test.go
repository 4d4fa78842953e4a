package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	ref := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"rfc3339", "2024-10-10T10:10:10Z", true},
		{"rfc3339 nano", "2024-10-10T10:10:10.000Z", true},
		{"unix seconds", strconv.FormatInt(ref.Unix(), 10), true},
		{"unix millis", strconv.FormatInt(ref.UnixMilli(), 10), true},
		{"empty", "", false},
		{"garbage", "yesterday", false},
		{"negative", "-5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(ref), got)
			}
		})
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("nope", def).Equal(def))
}
