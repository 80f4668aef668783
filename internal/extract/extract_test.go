package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.November, 20, 9, 0, 0, 0, time.UTC)
	}
}

func TestExtract_Dated(t *testing.T) {
	e := New(WithClock(fixedClock(2026)))

	tests := []struct {
		name        string
		transcript  string
		iso         string
		description string
	}{
		{
			name:        "phrase at end",
			transcript:  "Remind me about the dentist March 3rd at 4:30 p.m.",
			iso:         "2026-03-03T16:30:00",
			description: "",
		},
		{
			name:        "trailing description",
			transcript:  "March 3rd at 4:30 p.m. dentist appointment ",
			iso:         "2026-03-03T16:30:00",
			description: "dentist appointment",
		},
		{
			name:        "lowercase month no ordinal",
			transcript:  "october 12 at 9:05 am call mom",
			iso:         "2026-10-12T09:05:00",
			description: "call mom",
		},
		{
			name:        "uppercase marker",
			transcript:  "JULY 21st at 12:00 PM lunch with Sam",
			iso:         "2026-07-21T12:00:00",
			description: "lunch with Sam",
		},
		{
			name:        "midnight",
			transcript:  "December 31st at 12:15 a.m. fireworks",
			iso:         "2026-12-31T00:15:00",
			description: "fireworks",
		},
		{
			name:        "compact marker",
			transcript:  "June 2nd at 7:45pm pick up laundry",
			iso:         "2026-06-02T19:45:00",
			description: "pick up laundry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.transcript)
			require.True(t, got.Dated())
			assert.Equal(t, tt.iso, got.ISO())
			assert.Equal(t, tt.description, got.Description)
		})
	}
}

func TestExtract_FirstMatchOnly(t *testing.T) {
	e := New(WithClock(fixedClock(2026)))

	got := e.Extract("May 1st at 8:00 a.m. standup then May 2nd at 9:00 a.m. retro")
	require.True(t, got.Dated())
	assert.Equal(t, "2026-05-01T08:00:00", got.ISO())
	assert.Equal(t, "standup then May 2nd at 9:00 a.m. retro", got.Description)
}

func TestExtract_Undated(t *testing.T) {
	e := New(WithClock(fixedClock(2026)))

	for _, transcript := range []string{
		"Buy groceries tomorrow",
		"",
		"March at 4:30 p.m.",
		"March 3rd 4:30 p.m.",
		"March 3rd at 4:3 p.m.",
	} {
		got := e.Extract(transcript)
		assert.False(t, got.Dated(), transcript)
		assert.Equal(t, "", got.ISO())
		assert.Equal(t, transcript, got.Description)
	}
}

func TestExtract_InvalidCalendarDate(t *testing.T) {
	e := New(WithClock(fixedClock(2026)))

	for _, transcript := range []string{
		"February 30th at 10:00 a.m. impossible meeting",
		"April 31st at 10:00 a.m. also impossible",
		"March 3rd at 13:30 p.m. bad hour",
		"March 3rd at 4:75 p.m. bad minute",
	} {
		got := e.Extract(transcript)
		assert.Nil(t, got.Timestamp, transcript)
		assert.Equal(t, transcript, got.Description)
	}
}

func TestExtract_YearFromClock(t *testing.T) {
	got := New(WithClock(fixedClock(2031))).Extract("January 5th at 6:00 p.m. taxes")
	require.True(t, got.Dated())
	assert.Equal(t, 2031, got.Timestamp.Year())

	// Leap day only parses in a leap year.
	assert.True(t, New(WithClock(fixedClock(2028))).Extract("February 29th at 1:00 p.m. x").Dated())
	assert.False(t, New(WithClock(fixedClock(2027))).Extract("February 29th at 1:00 p.m. x").Dated())
}

func TestExtract_Deterministic(t *testing.T) {
	e := New(WithClock(fixedClock(2026)))
	transcript := "Remind me about the dentist March 3rd at 4:30 p.m. bring forms"

	assert.Equal(t, e.Extract(transcript), e.Extract(transcript))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "Remind me about the dentist", Prefix("Remind me about the dentist March 3rd at 4:30 p.m."))
	assert.Equal(t, "", Prefix("Buy groceries tomorrow"))
}
