package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"memocal/internal/models"
)

// parseLayout is the shape the matched phrase is normalized into before parsing.
const parseLayout = "January 2 2006 3:04 PM"

// phrasePattern matches "<Month> <day>[ordinal] at <h>:<mm> <am/pm>", e.g. "March 3rd at 4:30 p.m.".
var phrasePattern = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?\s+at\s+(\d{1,2}):(\d{2})\s*([ap])\.?\s?m\b\.?`)

// Extractor recovers a reminder timestamp and description from a transcript.
type Extractor struct {
	now func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock overrides the clock used to infer the year.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// New creates an Extractor. The current year is read from time.Now unless WithClock is given.
func New(opts ...Option) *Extractor {
	e := &Extractor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract looks for the first date/time phrase in transcript.
// On success the description is the text after the phrase; otherwise the
// timestamp is nil and the description is the whole transcript.
func (e *Extractor) Extract(transcript string) models.Extraction {
	loc := phrasePattern.FindStringSubmatchIndex(transcript)
	if loc == nil {
		return models.Extraction{Description: transcript}
	}

	group := func(i int) string {
		return transcript[loc[2*i]:loc[2*i+1]]
	}

	ts, err := e.parse(group(1), group(2), group(3), group(4), group(5))
	if err != nil {
		return models.Extraction{Description: transcript}
	}

	return models.Extraction{
		Timestamp:   &ts,
		Description: strings.TrimSpace(transcript[loc[1]:]),
	}
}

// Prefix returns the transcript text before the first date/time phrase, trimmed.
// It returns "" when there is no phrase.
func Prefix(transcript string) string {
	loc := phrasePattern.FindStringIndex(transcript)
	if loc == nil {
		return ""
	}
	return strings.TrimSpace(transcript[:loc[0]])
}

func (e *Extractor) parse(month, day, hour, minute, marker string) (time.Time, error) {
	normalized := fmt.Sprintf("%s %s %d %s:%s %sM",
		strings.ToUpper(month[:1])+strings.ToLower(month[1:]),
		day,
		e.now().Year(),
		hour,
		minute,
		strings.ToUpper(marker),
	)
	ts, err := time.Parse(parseLayout, normalized)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", normalized, err)
	}
	return ts, nil
}
