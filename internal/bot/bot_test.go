package bot

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rojolang/voicebridge/internal/store"
)

func newTestBot(t *testing.T, handlers map[string]func(map[string]any) any) (*Bot, *store.Store) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	return &Bot{
		API:   newFakeTelegram(t, handlers),
		Store: db,
		Log:   zerolog.Nop(),
	}, db
}

func TestHandleStartCommand(t *testing.T) {
	var sent []string
	b, db := newTestBot(t, map[string]func(map[string]any) any{
		"sendMessage": func(params map[string]any) any {
			sent = append(sent, params["text"].(string))
			return Message{MessageID: 1}
		},
	})

	b.handle(context.Background(), &Message{
		Text: "/start",
		Chat: &Chat{ID: 77, Type: "private"},
		From: &User{ID: 42, Username: "tester"},
	})

	require.Len(t, sent, 1)
	assert.Equal(t, "Привет! Просто введи свой запрос и я помогу тебе с управлением таблицами", sent[0])

	// The sender was registered by handle; the upsert finds that row.
	u, err := db.UpsertUser(42, "tester", "", "")
	require.NoError(t, err)
	assert.Equal(t, uint(1), u.ID)
	assert.Equal(t, "tester", u.Username)
}

func TestHandleHelpCommand(t *testing.T) {
	var sent []string
	b, _ := newTestBot(t, map[string]func(map[string]any) any{
		"sendMessage": func(params map[string]any) any {
			sent = append(sent, params["text"].(string))
			return Message{MessageID: 1}
		},
	})

	b.handle(context.Background(), &Message{
		Text: "/help",
		Chat: &Chat{ID: 77, Type: "private"},
		From: &User{ID: 42},
	})

	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "/help")
}

func TestHandleIgnoresPlainText(t *testing.T) {
	var sent int
	b, _ := newTestBot(t, map[string]func(map[string]any) any{
		"sendMessage": func(params map[string]any) any {
			sent++
			return Message{MessageID: 1}
		},
	})

	b.handle(context.Background(), &Message{
		Text: "just chatting",
		Chat: &Chat{ID: 77, Type: "private"},
		From: &User{ID: 42},
	})
	assert.Zero(t, sent, "plain text must not trigger a reply")
}

func TestHandlePanicSendsGenericFailure(t *testing.T) {
	var sent []string
	b, _ := newTestBot(t, map[string]func(map[string]any) any{
		"sendMessage": func(params map[string]any) any {
			sent = append(sent, params["text"].(string))
			return Message{MessageID: 1}
		},
	})
	// No VoiceHandler wired: a voice message dereferences nil and panics.
	b.handle(context.Background(), &Message{
		Chat:  &Chat{ID: 77, Type: "private"},
		From:  &User{ID: 42},
		Voice: &Voice{FileID: "f"},
	})

	require.Len(t, sent, 1)
	assert.Equal(t, statusGeneric, sent[0])
}

func TestBumpVoiceCount(t *testing.T) {
	b, db := newTestBot(t, nil)
	msg := &Message{
		Chat: &Chat{ID: 77, Type: "private"},
		From: &User{ID: 42},
	}

	b.bumpVoiceCount(msg)
	b.bumpVoiceCount(msg)

	data, err := db.GetSession(store.SessionKey(42, 77))
	require.NoError(t, err)
	assert.Equal(t, float64(2), data["voice_count"])
	assert.NotEmpty(t, data["last_voice_at"])
}

// Simultaneous voice messages from the same dialog must not lose counts.
func TestBumpVoiceCountConcurrent(t *testing.T) {
	b, db := newTestBot(t, nil)
	msg := &Message{
		Chat: &Chat{ID: 77, Type: "private"},
		From: &User{ID: 42},
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.bumpVoiceCount(msg)
		}()
	}
	wg.Wait()

	data, err := db.GetSession(store.SessionKey(42, 77))
	require.NoError(t, err)
	assert.Equal(t, float64(n), data["voice_count"])
}
