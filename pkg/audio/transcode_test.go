package audio

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscodeArgs(t *testing.T) {
	args := transcodeArgs("/tmp/in.ogg", "/tmp/out.wav")
	assert.Equal(t, []string{
		"-y",
		"-i", "/tmp/in.ogg",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"/tmp/out.wav",
	}, args)
}

func TestToPCMMissingBinary(t *testing.T) {
	tr := NewTranscoder("/nonexistent/ffmpeg", zerolog.Nop())
	dir := t.TempDir()
	err := tr.ToPCM(context.Background(), filepath.Join(dir, "in.ogg"), filepath.Join(dir, "out.wav"))

	var terr *TranscodeError
	require.ErrorAs(t, err, &terr)
}

func TestToPCMNoOutput(t *testing.T) {
	// "true" exits zero without creating the output file.
	tr := NewTranscoder("true", zerolog.Nop())
	dir := t.TempDir()
	err := tr.ToPCM(context.Background(), filepath.Join(dir, "in.ogg"), filepath.Join(dir, "out.wav"))

	var terr *TranscodeError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Error(), "no output file")
}

func TestNewTranscoderDefaultsBinary(t *testing.T) {
	tr := NewTranscoder("", zerolog.Nop())
	assert.Equal(t, "ffmpeg", tr.FFmpeg)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("  short  ", 300))
	assert.Equal(t, "cde", tail("abcde", 3))
}
