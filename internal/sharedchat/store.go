package sharedchat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no chat exists under the requested id.
var ErrNotFound = errors.New("chat not found")

// Chat is the persisted shareable conversation blob. Create/read only; chats
// are never updated or deleted.
type Chat struct {
	ChatID    string            `json:"chat_id"`
	ToolName  string            `json:"tool_name"`
	Messages  []json.RawMessage `json:"messages"`
	CreatedAt string            `json:"created_at"`
}

// Store keeps one JSON file per chat under a data directory.
type Store struct {
	dir string
}

var chatIDPattern = regexp.MustCompile(`^[0-9a-f-]{8}$`)

// NewStore creates the data directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("shared chat dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create shared chat dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Create persists a chat and returns its generated 8-char id.
func (s *Store) Create(chat Chat) (string, error) {
	chat.ChatID = uuid.NewString()[:8]
	if chat.ToolName == "" {
		chat.ToolName = "generic"
	}
	if chat.CreatedAt == "" {
		chat.CreatedAt = time.Now().UTC().Format("2006-01-02T15:04:05Z")
	}
	data, err := json.Marshal(chat)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(s.path(chat.ChatID), data, 0o644); err != nil {
		return "", fmt.Errorf("write shared chat: %w", err)
	}
	return chat.ChatID, nil
}

// Get returns a chat by id, or ErrNotFound.
func (s *Store) Get(chatID string) (Chat, error) {
	if !chatIDPattern.MatchString(chatID) {
		return Chat{}, ErrNotFound
	}
	data, err := os.ReadFile(s.path(chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return Chat{}, ErrNotFound
		}
		return Chat{}, err
	}
	var chat Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		return Chat{}, fmt.Errorf("decode shared chat: %w", err)
	}
	return chat, nil
}

func (s *Store) path(chatID string) string {
	return filepath.Join(s.dir, chatID+".json")
}
