package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rojolang/voicebridge/internal/store"
)

const startReply = "Привет! Просто введи свой запрос и я помогу тебе с управлением таблицами"

const helpReply = "Отправь мне голосовое сообщение, я распознаю его и передам AI помощнику.\n\n" +
	"Команды:\n/start — начать работу\n/help — эта справка"

// Bot polls the platform for updates and dispatches them. Each update is
// handled on its own goroutine so a slow voice pipeline never stalls
// polling.
type Bot struct {
	API         *TelegramAPI
	Store       *store.Store
	Voice       *VoiceHandler
	PollTimeout time.Duration
	Log         zerolog.Logger

	// sessionMu serializes session read-modify-write cycles across the
	// per-update goroutines.
	sessionMu sync.Mutex
}

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.API.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("bot identity check: %w", err)
	}
	b.Log.Info().Str("username", me.Username).Int64("id", me.ID).Msg("bot started")

	var offset int64
	for {
		updates, next, err := b.API.GetUpdates(ctx, offset, b.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.Log.Warn().Err(err).Msg("poll failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}
		offset = next
		for _, u := range updates {
			if u.Message == nil {
				continue
			}
			go b.handle(ctx, u.Message)
		}
	}
}

func (b *Bot) handle(ctx context.Context, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			b.Log.Error().Interface("panic", r).Int64("chat_id", msg.Chat.ID).Msg("update handler panicked")
			if _, err := b.API.SendMessage(ctx, msg.Chat.ID, statusGeneric); err != nil {
				b.Log.Warn().Err(err).Msg("could not report failure to user")
			}
		}
	}()

	if msg.From == nil || msg.Chat == nil {
		return
	}
	b.rememberUser(msg)

	switch {
	case msg.Voice != nil:
		b.bumpVoiceCount(msg)
		b.Voice.Handle(ctx, msg)
	case strings.HasPrefix(msg.Text, "/start"):
		b.reply(ctx, msg.Chat.ID, startReply)
	case strings.HasPrefix(msg.Text, "/help"):
		b.reply(ctx, msg.Chat.ID, helpReply)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.API.SendMessage(ctx, chatID, text); err != nil {
		b.Log.Warn().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}

func (b *Bot) rememberUser(msg *Message) {
	if b.Store == nil || msg.Chat.Type != "private" {
		return
	}
	if _, err := b.Store.UpsertUser(msg.From.ID, msg.From.Username, msg.From.FirstName, msg.From.LastName); err != nil {
		b.Log.Warn().Err(err).Int64("tg_id", msg.From.ID).Msg("user upsert failed")
	}
}

// bumpVoiceCount keeps a per-dialog counter in the session blob so the
// agent side can later read interaction history.
func (b *Bot) bumpVoiceCount(msg *Message) {
	if b.Store == nil {
		return
	}
	b.sessionMu.Lock()
	defer b.sessionMu.Unlock()

	key := store.SessionKey(msg.From.ID, msg.Chat.ID)
	data, err := b.Store.GetSession(key)
	if err != nil {
		b.Log.Warn().Err(err).Str("session", key).Msg("session load failed")
		return
	}
	count, _ := data["voice_count"].(float64)
	data["voice_count"] = count + 1
	data["last_voice_at"] = time.Now().UTC().Format(time.RFC3339)
	if err := b.Store.PutSession(key, data); err != nil {
		b.Log.Warn().Err(err).Str("session", key).Msg("session save failed")
	}
}
