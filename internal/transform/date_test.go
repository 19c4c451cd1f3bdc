package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ofx compact datetime", "20251212120000", "2025-12-12T00:00:00Z"},
		{"ofx with millis and zone", "20251120000000.000[-7:MST]", "2025-11-20T00:00:00Z"},
		{"ofx with zone only", "20251129120000[0:GMT]", "2025-11-29T00:00:00Z"},
		{"ofx with millis only", "20251129120000.123", "2025-11-29T00:00:00Z"},
		{"ofx date only", "20251212", "2025-12-12T00:00:00Z"},
		{"ofx trailing whitespace", "20240613120000 ", "2024-06-13T00:00:00Z"},
		{"rfc3339 utc", "2025-12-12T08:30:00Z", "2025-12-12T08:30:00Z"},
		{"rfc3339 with offset keeps time", "2025-12-12T20:30:00-05:00", "2025-12-13T01:30:00Z"},
		{"iso date", "2025-12-12", "2025-12-12T00:00:00Z"},
		{"us date", "12/12/2025", "2025-12-12T00:00:00Z"},
		{"us date single digits", "1/2/2025", "2025-01-02T00:00:00Z"},
		{"not a date", "not-a-date", "not-a-date"},
		{"empty", "", ""},
		{"impossible ofx date", "20251399000000", "20251399000000"},
		{"impossible ofx time", "20251212999999", "20251212999999"},
		{"ofx hour out of range with zone", "20251212240000[0:GMT]", "20251212240000[0:GMT]"},
		{"ofx last second of day", "20251212235959", "2025-12-12T00:00:00Z"},
		{"too many digits", "202512121200001", "202512121200001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDate(tt.input))
		})
	}
}

func TestNormalizeDate_CompactEqualsISO(t *testing.T) {
	assert.Equal(t, NormalizeDate("2025-12-12"), NormalizeDate("20251212120000"))
}

func TestIsNormalizedDate(t *testing.T) {
	assert.True(t, IsNormalizedDate(NormalizeDate("20251212120000")))
	assert.False(t, IsNormalizedDate(NormalizeDate("not-a-date")))
}
