package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TelegramAPI is a minimal Bot API client covering exactly the calls the
// bot needs: long polling, message send/edit and attachment resolution.
type TelegramAPI struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewTelegramAPI(client *http.Client, baseURL, token string) *TelegramAPI {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &TelegramAPI{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is the subset of a Telegram message the bot reads.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
	Voice     *Voice `json:"voice,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Voice is a voice-note attachment.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description,omitempty"`
}

func (a *TelegramAPI) call(ctx context.Context, method string, params, out any) error {
	var body io.Reader
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	u := fmt.Sprintf("%s/bot%s/%s", a.baseURL, a.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram %s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var wrapped apiResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if !wrapped.OK {
		return fmt.Errorf("telegram %s: %s", method, wrapped.Description)
	}
	if out != nil {
		return json.Unmarshal(wrapped.Result, out)
	}
	return nil
}

// GetMe identifies the bot account; used as a startup health check.
func (a *TelegramAPI) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := a.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for updates after offset and returns them with
// the next offset to use.
func (a *TelegramAPI) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	params := map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}
	var updates []Update
	if err := a.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

// SendMessage posts text to a chat and returns the sent message, whose id
// is needed for subsequent edits.
func (a *TelegramAPI) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	params := map[string]any{"chat_id": chatID, "text": text}
	var msg Message
	if err := a.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text of an already-sent message in place.
func (a *TelegramAPI) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	return a.call(ctx, "editMessageText", params, nil)
}

// FileURL resolves an attachment id to a directly fetchable URL.
func (a *TelegramAPI) FileURL(ctx context.Context, fileID string) (string, error) {
	if strings.TrimSpace(fileID) == "" {
		return "", fmt.Errorf("telegram getFile: missing file_id")
	}
	var file struct {
		FileID   string `json:"file_id"`
		FilePath string `json:"file_path"`
	}
	if err := a.call(ctx, "getFile", map[string]any{"file_id": fileID}, &file); err != nil {
		return "", err
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("telegram getFile: missing file_path")
	}
	return fmt.Sprintf("%s/file/bot%s/%s", a.baseURL, a.token, strings.TrimLeft(file.FilePath, "/")), nil
}
