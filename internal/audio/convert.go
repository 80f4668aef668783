package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Converter decodes a compressed recording into a container the transcriber accepts.
type Converter interface {
	Convert(ctx context.Context, sourcePath, targetPath string) error
}

// ConversionError reports a failed conversion with the tool's diagnostic output.
type ConversionError struct {
	Source string
	Output string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("convert %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("convert %s: %v: %s", e.Source, e.Err, e.Output)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// FFmpeg converts audio with the ffmpeg binary into 16 kHz mono PCM WAV.
type FFmpeg struct {
	Path string
}

// NewFFmpeg returns a converter using the binary at path, or "ffmpeg" from PATH.
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

// Args returns the ffmpeg arguments for a conversion.
func (f *FFmpeg) Args(sourcePath, targetPath string) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", sourcePath,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		targetPath,
	}
}

func (f *FFmpeg) Convert(ctx context.Context, sourcePath, targetPath string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Path, f.Args(sourcePath, targetPath)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &ConversionError{Source: sourcePath, Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return nil
}

// NeedsConversion reports whether a file must be converted before transcription.
func NeedsConversion(path string) bool {
	return !strings.EqualFold(filepath.Ext(path), ".wav")
}

// TargetPath returns the WAV path a source file converts to, placed in dir.
func TargetPath(dir, sourcePath string) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(dir, base+".wav")
}
