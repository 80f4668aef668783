package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"memocal/internal/audio"
	"memocal/internal/extract"
	"memocal/internal/models"
	"memocal/internal/transcribe"

	"github.com/google/uuid"
)

// State is a step of a pipeline run.
type State string

const (
	StateTranscribed      State = "transcribed"
	StateExtracted        State = "extracted"
	StateScheduled        State = "scheduled"
	StateExtractionFailed State = "extraction_failed"
	StateSyncFailed       State = "sync_failed"
)

// ErrNotRetryable is returned by Retry for outcomes that did not fail at create.
var ErrNotRetryable = errors.New("outcome is not a failed create")

// Calendar is the part of calsync.Client the pipeline drives.
type Calendar interface {
	Create(ctx context.Context, r models.Reminder) (string, error)
	List(ctx context.Context, from time.Time, max int) ([]*models.Event, error)
	Delete(ctx context.Context, eventID string) error
	Location() *time.Location
}

// Outcome is the result of one pipeline run. The transcript and extraction
// are always kept so a failed run can be retried or shown to a user.
type Outcome struct {
	State      State
	Transcript string
	Extraction models.Extraction
	Reminder   models.Reminder
	EventID    string
	DryRun     bool
	Err        error
}

// Pipeline turns transcripts into calendar reminders.
type Pipeline struct {
	logger      *slog.Logger
	extractor   *extract.Extractor
	calendar    Calendar
	converter   audio.Converter
	transcriber transcribe.Transcriber
	workDir     string
	dryRun      bool
	newKey      func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAudio enables ProcessAudio. Converted files are written under workDir
// (the system temp dir when empty) and removed after transcription.
func WithAudio(converter audio.Converter, transcriber transcribe.Transcriber, workDir string) Option {
	return func(p *Pipeline) {
		p.converter = converter
		p.transcriber = transcriber
		p.workDir = workDir
	}
}

// WithDryRun logs the reminder that would be created instead of creating it.
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) {
		p.dryRun = dryRun
	}
}

// WithKeyFunc overrides the idempotency key generator.
func WithKeyFunc(fn func() string) Option {
	return func(p *Pipeline) {
		p.newKey = fn
	}
}

// New creates a Pipeline.
func New(logger *slog.Logger, extractor *extract.Extractor, calendar Calendar, opts ...Option) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if calendar == nil {
		return nil, fmt.Errorf("calendar is required")
	}

	p := &Pipeline{
		logger:    logger,
		extractor: extractor,
		calendar:  calendar,
		newKey:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ProcessAudio converts and transcribes a recording, then runs the transcript.
// Conversion and transcription failures stop the run and are returned as errors.
func (p *Pipeline) ProcessAudio(ctx context.Context, audioPath string) (*Outcome, error) {
	if p.transcriber == nil {
		return nil, fmt.Errorf("no transcriber configured")
	}

	samplePath := audioPath
	if audio.NeedsConversion(audioPath) {
		if p.converter == nil {
			return nil, fmt.Errorf("no audio converter configured for %s", audioPath)
		}
		dir, err := os.MkdirTemp(p.workDir, "memocal-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
		defer os.RemoveAll(dir)

		samplePath = audio.TargetPath(dir, audioPath)
		p.logger.Debug("Converting audio", "source", audioPath, "target", samplePath)
		if err := p.converter.Convert(ctx, audioPath, samplePath); err != nil {
			return nil, fmt.Errorf("failed to convert audio: %w", err)
		}
	}

	transcript, err := p.transcriber.Transcribe(ctx, samplePath)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe audio: %w", err)
	}
	p.logger.Info("Transcribed audio.", "file", audioPath, "transcript", transcript)

	return p.Run(ctx, transcript)
}

// Run extracts a reminder from transcript and creates it on the calendar.
// An undated transcript yields StateExtractionFailed with a nil error and no
// calendar call. A failed create yields StateSyncFailed and the sync error.
func (p *Pipeline) Run(ctx context.Context, transcript string) (*Outcome, error) {
	out := &Outcome{State: StateTranscribed, Transcript: transcript}

	out.Extraction = p.extractor.Extract(transcript)
	out.State = StateExtracted
	if !out.Extraction.Dated() {
		out.State = StateExtractionFailed
		p.logger.Warn("Could not extract a date and time from the transcript.", "transcript", transcript)
		return out, nil
	}

	ts := *out.Extraction.Timestamp
	loc := p.calendar.Location()
	start := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), 0, 0, loc)
	out.Reminder = models.Reminder{
		Summary:  Summary(transcript, out.Extraction),
		Start:    start,
		End:      start,
		TimeZone: loc.String(),
		Key:      p.newKey(),
	}

	if p.dryRun {
		out.DryRun = true
		p.logger.Info("[DRY RUN] Would create calendar reminder", "summary", out.Reminder.Summary, "start", out.Reminder.Start)
		return out, nil
	}

	return p.create(ctx, out)
}

// Retry re-issues the create of a StateSyncFailed outcome with its original idempotency key.
func (p *Pipeline) Retry(ctx context.Context, out *Outcome) (*Outcome, error) {
	if out == nil || out.State != StateSyncFailed {
		return out, ErrNotRetryable
	}
	return p.create(ctx, out)
}

func (p *Pipeline) create(ctx context.Context, out *Outcome) (*Outcome, error) {
	id, err := p.calendar.Create(ctx, out.Reminder)
	if err != nil {
		out.State = StateSyncFailed
		out.Err = err
		p.logger.Error("Failed to create calendar reminder", "summary", out.Reminder.Summary, "error", err)
		return out, err
	}

	out.State = StateScheduled
	out.EventID = id
	out.Err = nil
	p.logger.Info("Scheduled reminder.", "id", id, "summary", out.Reminder.Summary, "start", out.Reminder.Start)
	return out, nil
}

// List returns upcoming reminders from the calendar.
func (p *Pipeline) List(ctx context.Context, from time.Time, max int) ([]*models.Event, error) {
	return p.calendar.List(ctx, from, max)
}

// Delete removes a reminder by event id.
func (p *Pipeline) Delete(ctx context.Context, eventID string) error {
	return p.calendar.Delete(ctx, eventID)
}

// Summary picks the event title for an extraction: the text after the
// date phrase, else the text before it, else the whole transcript.
func Summary(transcript string, ext models.Extraction) string {
	if s := strings.TrimSpace(ext.Description); s != "" {
		return s
	}
	if s := extract.Prefix(transcript); s != "" {
		return s
	}
	return strings.TrimSpace(transcript)
}
