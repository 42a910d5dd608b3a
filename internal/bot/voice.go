package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rojolang/voicebridge/internal/metrics"
	"github.com/rojolang/voicebridge/pkg/agent"
	"github.com/rojolang/voicebridge/pkg/audio"
)

// User-facing status texts. Every stage edits the same status message in
// place; only the initial "processing" reply creates one.
const (
	statusProcessing   = "🎤 Processing your voice message..."
	statusNotheard     = "🎤 Я не смог распознать, что вы сказали"
	statusThinking     = "🎤 Я вас услышал!\n\n🤖 AI помощник думает..."
	statusAnswerPrefix = "🤖 Ответ помощника:\n"
	statusAgentError   = "🎤 Я вас услышал!\n\n❌ Ошибка работы AI помощника"
	statusGeneric      = "Sorry, there was an error processing your voice message."
)

// Outcome classifies how a voice task ended.
type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeEmpty      Outcome = "empty"
	OutcomeAgentError Outcome = "agent_error"
	OutcomeFailed     Outcome = "failed"
)

// Platform is the slice of the chat platform the orchestrator touches.
type Platform interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Transcoder converts a downloaded voice note into linear PCM.
type Transcoder interface {
	ToPCM(ctx context.Context, src, dst string) error
}

// Transcriber turns a PCM file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Asker forwards a transcript to the conversational agent.
type Asker interface {
	Ask(ctx context.Context, text string) (string, error)
}

// TranscriptRecorder archives successful transcripts.
type TranscriptRecorder interface {
	SaveTranscript(tgID int64, text string) error
}

// VoiceHandler sequences one voice message through download, transcoding,
// recognition and the agent, reporting progress by editing a single
// status message.
type VoiceHandler struct {
	Platform   Platform
	HTTP       *http.Client
	Transcoder Transcoder
	Transcribe Transcriber
	Agent      Asker
	Recorder   TranscriptRecorder
	ScratchDir string
	Log        zerolog.Logger
}

// Handle processes one incoming voice message and returns how it ended.
// Every failure is rendered to the user here; errors never escape to the
// update loop.
func (h *VoiceHandler) Handle(ctx context.Context, msg *Message) Outcome {
	log := h.Log.With().
		Int64("chat_id", msg.Chat.ID).
		Int64("from_id", msg.From.ID).
		Int("duration", msg.Voice.Duration).
		Logger()

	status, err := h.Platform.SendMessage(ctx, msg.Chat.ID, statusProcessing)
	if err != nil {
		log.Error().Err(err).Msg("could not create status message")
		return OutcomeFailed
	}
	edit := func(text string) {
		if err := h.Platform.EditMessageText(ctx, msg.Chat.ID, status.MessageID, text); err != nil {
			log.Warn().Err(err).Msg("status edit failed")
		}
	}

	transcript, err := h.transcribeVoice(ctx, msg, log)
	if err != nil {
		log.Error().Err(err).Msg("voice pipeline failed")
		edit(statusGeneric)
		return h.finish(OutcomeFailed)
	}

	if strings.TrimSpace(transcript) == "" {
		log.Info().Msg("nothing recognized")
		edit(statusNotheard)
		return h.finish(OutcomeEmpty)
	}

	log.Info().Str("transcript", transcript).Msg("voice message transcribed")
	if h.Recorder != nil {
		if err := h.Recorder.SaveTranscript(msg.From.ID, transcript); err != nil {
			log.Warn().Err(err).Msg("could not archive transcript")
		}
	}

	edit(statusThinking)

	answer, err := h.Agent.Ask(ctx, transcript)
	if err != nil {
		log.Error().Err(err).Msg("agent request failed")
		metrics.AgentRequests.WithLabelValues(askResultLabel(err)).Inc()
		edit(statusAgentError)
		return h.finish(OutcomeAgentError)
	}
	metrics.AgentRequests.WithLabelValues("ok").Inc()

	edit(statusAnswerPrefix + answer)
	return h.finish(OutcomeAnswered)
}

// transcribeVoice runs download → transcode → recognition. Both scratch
// files are removed on every exit path.
func (h *VoiceHandler) transcribeVoice(ctx context.Context, msg *Message, log zerolog.Logger) (string, error) {
	fileURL, err := h.Platform.FileURL(ctx, msg.Voice.FileID)
	if err != nil {
		return "", &audio.DownloadError{Err: err}
	}

	base := fmt.Sprintf("voice_%d_%d", msg.From.ID, time.Now().UnixMilli())
	oggPath := filepath.Join(h.ScratchDir, base+".ogg")
	wavPath := filepath.Join(h.ScratchDir, base+".wav")
	defer func() {
		removeQuiet(oggPath, log)
		removeQuiet(wavPath, log)
	}()

	if err := audio.Download(ctx, h.HTTP, fileURL, oggPath); err != nil {
		return "", err
	}
	if err := h.Transcoder.ToPCM(ctx, oggPath, wavPath); err != nil {
		return "", err
	}

	start := time.Now()
	transcript, err := h.Transcribe.Transcribe(ctx, wavPath)
	if err != nil {
		return "", err
	}
	metrics.ObserveTranscription(start)
	return transcript, nil
}

func (h *VoiceHandler) finish(o Outcome) Outcome {
	metrics.VoiceTasks.WithLabelValues(string(o)).Inc()
	return o
}

func askResultLabel(err error) string {
	var serviceErr *agent.ServiceError
	var transportErr *agent.TransportError
	switch {
	case errors.Is(err, agent.ErrTimeout):
		return "timeout"
	case errors.Is(err, agent.ErrNotConnected):
		return "not_connected"
	case errors.As(err, &serviceErr):
		return "service_error"
	case errors.As(err, &transportErr):
		return "transport_error"
	default:
		return "error"
	}
}

func removeQuiet(path string, log zerolog.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("scratch file cleanup failed")
	}
}
