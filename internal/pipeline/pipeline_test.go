package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memocal/internal/calsync"
	"memocal/internal/calsync/calsynctest"
	"memocal/internal/extract"
	"memocal/internal/models"
	"memocal/internal/transcribe"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTranscriber struct {
	text  string
	err   error
	paths []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	return f.text, f.err
}

type fakeConverter struct {
	calls int
	err   error
}

func (f *fakeConverter) Convert(_ context.Context, _, target string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(target, []byte("wav"), 0o600)
}

func newPipeline(t *testing.T, store calsync.Store, opts ...Option) *Pipeline {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	client, err := calsync.NewClient(testLogger, store, "primary", loc)
	require.NoError(t, err)

	clock := func() time.Time { return time.Date(2030, 1, 15, 8, 0, 0, 0, loc) }
	opts = append([]Option{WithKeyFunc(func() string { return "key-1" })}, opts...)
	p, err := New(testLogger, extract.New(extract.WithClock(clock)), client, opts...)
	require.NoError(t, err)
	return p
}

func TestRun_Scheduled(t *testing.T) {
	store := calsynctest.New()
	p := newPipeline(t, store)

	out, err := p.Run(context.Background(), "Remind me about the dentist March 3rd at 4:30 p.m. bring insurance card")
	require.NoError(t, err)

	assert.Equal(t, StateScheduled, out.State)
	assert.Equal(t, "evt-1", out.EventID)
	assert.Equal(t, "2030-03-03T16:30:00", out.Extraction.ISO())
	assert.Equal(t, "bring insurance card", out.Reminder.Summary)
	assert.Equal(t, "America/Los_Angeles", out.Reminder.TimeZone)
	assert.Equal(t, "key-1", out.Reminder.Key)
	assert.Equal(t, 16, out.Reminder.Start.Hour())
	assert.Equal(t, "America/Los_Angeles", out.Reminder.Start.Location().String())
	assert.True(t, out.Reminder.Start.Equal(out.Reminder.End))
	assert.Equal(t, 1, store.Inserts)
}

func TestRun_PhraseAtEndUsesLeadingText(t *testing.T) {
	store := calsynctest.New()
	p := newPipeline(t, store)

	out, err := p.Run(context.Background(), "Remind me about the dentist March 3rd at 4:30 p.m.")
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, out.State)
	assert.Equal(t, "", out.Extraction.Description)
	assert.Equal(t, "Remind me about the dentist", out.Reminder.Summary)
}

func TestRun_ExtractionFailedMakesNoCall(t *testing.T) {
	store := calsynctest.New()
	p := newPipeline(t, store)

	out, err := p.Run(context.Background(), "Buy groceries tomorrow")
	require.NoError(t, err)
	assert.Equal(t, StateExtractionFailed, out.State)
	assert.Nil(t, out.Extraction.Timestamp)
	assert.Equal(t, "Buy groceries tomorrow", out.Extraction.Description)
	assert.Zero(t, store.Inserts)
}

func TestRun_SyncFailureKeepsContentAndRetries(t *testing.T) {
	store := calsynctest.New()
	store.InsertErr = calsync.NewError("", calsync.KindNetwork, errors.New("timeout"))
	p := newPipeline(t, store)

	transcript := "June 2nd at 7:45 p.m. pick up laundry"
	out, err := p.Run(context.Background(), transcript)
	require.Error(t, err)
	assert.True(t, calsync.IsKind(err, calsync.KindNetwork))
	assert.Equal(t, StateSyncFailed, out.State)
	assert.Equal(t, transcript, out.Transcript)
	assert.Equal(t, "pick up laundry", out.Extraction.Description)
	assert.Equal(t, err, out.Err)

	store.InsertErr = nil
	out, err = p.Retry(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, out.State)
	assert.NotEmpty(t, out.EventID)
	assert.Nil(t, out.Err)
	assert.Equal(t, 1, store.Len())

	_, err = p.Retry(context.Background(), out)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

func TestRun_DryRun(t *testing.T) {
	store := calsynctest.New()
	p := newPipeline(t, store, WithDryRun(true))

	out, err := p.Run(context.Background(), "June 2nd at 7:45 p.m. pick up laundry")
	require.NoError(t, err)
	assert.True(t, out.DryRun)
	assert.Equal(t, StateExtracted, out.State)
	assert.Zero(t, store.Inserts)
}

func TestListAndDelete(t *testing.T) {
	store := calsynctest.New()
	p := newPipeline(t, store, WithKeyFunc(func() string { return "" }))

	first, err := p.Run(context.Background(), "March 3rd at 4:30 p.m. dentist")
	require.NoError(t, err)
	_, err = p.Run(context.Background(), "March 2nd at 9:00 a.m. gym")
	require.NoError(t, err)

	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	events, err := p.List(context.Background(), from, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "gym", events[0].Summary)

	require.NoError(t, p.Delete(context.Background(), first.EventID))
	events, err = p.List(context.Background(), from, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEqual(t, first.EventID, events[0].ID)

	err = p.Delete(context.Background(), "nonexistent-id")
	assert.True(t, calsync.IsKind(err, calsync.KindNotFound))
}

func TestProcessAudio(t *testing.T) {
	store := calsynctest.New()
	conv := &fakeConverter{}
	tr := &fakeTranscriber{text: "October 12th at 9:05 a.m. call mom"}
	p := newPipeline(t, store, WithAudio(conv, tr, t.TempDir()), WithKeyFunc(func() string { return "" }))

	out, err := p.ProcessAudio(context.Background(), "/uploads/memo.mp3")
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, out.State)
	assert.Equal(t, "call mom", out.Reminder.Summary)
	assert.Equal(t, 1, conv.calls)
	require.Len(t, tr.paths, 1)
	assert.Equal(t, "memo.wav", filepath.Base(tr.paths[0]))

	_, err = p.ProcessAudio(context.Background(), "/uploads/memo.wav")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.calls)
	assert.Equal(t, "/uploads/memo.wav", tr.paths[1])
}

func TestProcessAudio_TranscriptionErrorStops(t *testing.T) {
	store := calsynctest.New()
	tr := &fakeTranscriber{err: &transcribe.Error{Kind: transcribe.KindUnintelligible, Err: errors.New("no speech")}}
	p := newPipeline(t, store, WithAudio(&fakeConverter{}, tr, t.TempDir()))

	out, err := p.ProcessAudio(context.Background(), "memo.wav")
	assert.Nil(t, out)
	var te *transcribe.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, transcribe.KindUnintelligible, te.Kind)
	assert.Zero(t, store.Inserts)
}

func TestProcessAudio_ConversionErrorStops(t *testing.T) {
	store := calsynctest.New()
	tr := &fakeTranscriber{text: "unused"}
	p := newPipeline(t, store, WithAudio(&fakeConverter{err: errors.New("bad mp3")}, tr, t.TempDir()))

	_, err := p.ProcessAudio(context.Background(), "memo.mp3")
	require.Error(t, err)
	assert.Empty(t, tr.paths)
}

func TestSummary(t *testing.T) {
	dated := models.Extraction{Description: ""}
	assert.Equal(t, "March 3rd at 4:30 p.m.", Summary("March 3rd at 4:30 p.m.", dated))
	assert.Equal(t, "call", Summary("x March 3rd at 4:30 p.m. call", models.Extraction{Description: "call"}))
}
