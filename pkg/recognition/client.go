// Package recognition streams PCM audio to a speech-recognition service
// over a websocket and accumulates the transcript it reports back.
package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultChunkInterval    = 10 * time.Millisecond
	defaultHandshakeTimeout = 10 * time.Second
)

// RecognitionError wraps any failure of the transcription session:
// unreadable input, dial failure, or a connection error before the
// service closed the stream.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Config controls the recognition client.
type Config struct {
	// URL is the websocket address of the recognition service.
	URL string

	// ChunkInterval paces outbound audio frames. This is flow control for
	// the service, not a correctness requirement; it must only be removed
	// in favor of real backpressure.
	ChunkInterval time.Duration

	HandshakeTimeout time.Duration
}

// Client opens one short-lived streaming session per Transcribe call.
// The connection is exclusive to that call and closed before it returns.
type Client struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = defaultChunkInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Client{cfg: cfg, log: log.With().Str("component", "recognition").Logger()}
}

type configMessage struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

type resultMessage struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
}

// Transcribe streams the PCM file at path and returns the best transcript
// the service produced. An empty string is a valid result: it means the
// service recognized nothing, not that the session failed.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &RecognitionError{Err: err}
	}
	pcm, sampleRate, err := stripHeader(data)
	if err != nil {
		return "", &RecognitionError{Err: err}
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return "", &RecognitionError{Err: err}
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var cfg configMessage
	cfg.Config.SampleRate = sampleRate
	if err := conn.WriteJSON(cfg); err != nil {
		return "", &RecognitionError{Err: err}
	}

	writeErr := make(chan error, 1)
	go func() { writeErr <- c.streamAudio(ctx, conn, pcm, sampleRate) }()

	// Each inbound message overwrites the running transcript; the service
	// sends monotonically better results and the last one wins.
	var transcript string
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				c.log.Debug().Int("pcm_bytes", len(pcm)).Str("transcript", transcript).
					Msg("recognition session closed")
				return transcript, nil
			}
			select {
			case werr := <-writeErr:
				if werr != nil {
					err = werr
				}
			default:
			}
			return "", &RecognitionError{Err: err}
		}

		var res resultMessage
		if err := json.Unmarshal(raw, &res); err != nil {
			c.log.Warn().Err(err).Msg("undecodable recognition frame")
			continue
		}
		switch {
		case res.Partial != nil:
			transcript = *res.Partial
		case res.Text != nil:
			transcript = *res.Text
		default:
			transcript = ""
		}
	}
}

// streamAudio sends the PCM payload in 200 ms frames with a small pacing
// delay, then the end-of-stream marker.
func (c *Client) streamAudio(ctx context.Context, conn *websocket.Conn, pcm []byte, sampleRate int) error {
	for _, chunk := range splitChunks(pcm, sampleRate) {
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ChunkInterval):
		}
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"eof":1}`))
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
