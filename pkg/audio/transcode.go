package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Target format for speech recognition: 16 kHz, 16-bit signed
// little-endian, mono.
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
	targetCodec      = "pcm_s16le"
)

// TranscodeError indicates the external transcoder failed or produced no
// usable output.
type TranscodeError struct {
	Err    error
	Output string // trailing transcoder output, for diagnostics
}

func (e *TranscodeError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("audio: transcode failed: %v: %s", e.Err, e.Output)
	}
	return fmt.Sprintf("audio: transcode failed: %v", e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Transcoder converts compressed voice notes into linear PCM by invoking
// ffmpeg as an external process.
type Transcoder struct {
	// FFmpeg is the binary to invoke. Defaults to "ffmpeg" on PATH.
	FFmpeg string

	log zerolog.Logger
}

func NewTranscoder(ffmpeg string, log zerolog.Logger) *Transcoder {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Transcoder{FFmpeg: ffmpeg, log: log.With().Str("component", "transcode").Logger()}
}

// ToPCM converts src into a 16 kHz mono 16-bit WAV at dst. The call
// blocks the calling goroutine until the transcoder exits.
func (t *Transcoder) ToPCM(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, t.FFmpeg, transcodeArgs(src, dst)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &TranscodeError{Err: err, Output: tail(string(out), 300)}
	}

	info, err := os.Stat(dst)
	if err != nil {
		return &TranscodeError{Err: fmt.Errorf("no output file: %w", err)}
	}
	if info.Size() == 0 {
		return &TranscodeError{Err: fmt.Errorf("empty output file %s", dst)}
	}

	t.log.Debug().Str("src", src).Str("dst", dst).Int64("bytes", info.Size()).Msg("transcoded voice note")
	return nil
}

func transcodeArgs(src, dst string) []string {
	return []string{
		"-y",
		"-i", src,
		"-ar", fmt.Sprint(TargetSampleRate),
		"-ac", fmt.Sprint(TargetChannels),
		"-c:a", targetCodec,
		dst,
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
