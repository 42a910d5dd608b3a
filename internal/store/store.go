// Package store persists users, per-chat sessions and transcribed
// messages in SQLite.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// User is one Telegram account that has talked to the bot.
type User struct {
	ID        uint  `gorm:"primarykey"`
	TgID      int64 `gorm:"uniqueIndex"`
	Username  string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is opaque per-chat state keyed by "<fromID>:<chatID>".
type Session struct {
	ID        uint   `gorm:"primarykey"`
	Key       string `gorm:"uniqueIndex"`
	Data      []byte
	UpdatedAt time.Time
}

// Message archives one successfully transcribed voice message.
type Message struct {
	ID        uint  `gorm:"primarykey"`
	TgID      int64 `gorm:"index"`
	Text      string
	CreatedAt time.Time
}

// Store wraps the database handle.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&User{}, &Session{}, &Message{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// UpsertUser creates the user on first contact and refreshes the profile
// fields when they changed.
func (s *Store) UpsertUser(tgID int64, username, firstName, lastName string) (*User, error) {
	var user User
	err := s.db.Where(&User{TgID: tgID}).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = User{TgID: tgID, Username: username, FirstName: firstName, LastName: lastName}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	case err != nil:
		return nil, err
	}

	if user.Username != username || user.FirstName != firstName || user.LastName != lastName {
		user.Username = username
		user.FirstName = firstName
		user.LastName = lastName
		if err := s.db.Save(&user).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

// SessionKey builds the canonical session key for a sender in a chat.
func SessionKey(fromID, chatID int64) string {
	return fmt.Sprintf("%d:%d", fromID, chatID)
}

// GetSession loads the session data for key, returning an empty map when
// none exists yet.
func (s *Store) GetSession(key string) (map[string]any, error) {
	var sess Session
	err := s.db.Where(&Session{Key: key}).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}

	data := map[string]any{}
	if len(sess.Data) > 0 {
		if err := json.Unmarshal(sess.Data, &data); err != nil {
			return nil, fmt.Errorf("store: corrupt session %s: %w", key, err)
		}
	}
	return data, nil
}

// PutSession stores the session data for key, creating the row on first
// write.
func (s *Store) PutSession(key string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	var sess Session
	err = s.db.Where(&Session{Key: key}).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&Session{Key: key, Data: raw}).Error
	}
	if err != nil {
		return err
	}
	sess.Data = raw
	return s.db.Save(&sess).Error
}

// SaveTranscript archives a transcribed voice message.
func (s *Store) SaveTranscript(tgID int64, text string) error {
	return s.db.Create(&Message{TgID: tgID, Text: text}).Error
}

// TranscriptCount reports how many transcripts a user has stored.
func (s *Store) TranscriptCount(tgID int64) (int64, error) {
	var n int64
	err := s.db.Model(&Message{}).Where("tg_id = ?", tgID).Count(&n).Error
	return n, err
}
