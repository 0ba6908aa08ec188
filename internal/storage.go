package internal

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore persists conversations, SSO configurations, and settings as JSON
// files under the data directory. When constructed with a secret, every file
// is sealed with AES-256-GCM; plaintext files from before a secret was set up
// remain readable.
type FileStore struct {
	mu  sync.Mutex
	dir string
	key []byte // nil means plaintext at rest

	now   func() time.Time
	newID func() string
}

const (
	ssoConfigsFile = "sso_configs.json"
	settingsFile   = "settings.json"
)

// DefaultDataDir returns the application data directory, ~/.chatctl.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".chatctl"), nil
}

// NewFileStore opens a store rooted at dir. An empty secret stores files in
// plaintext; otherwise the secret is stretched to a 256-bit key.
func NewFileStore(dir, secret string) *FileStore {
	s := &FileStore{
		dir:   dir,
		now:   time.Now,
		newID: uuid.NewString,
	}
	if secret != "" {
		key := sha256.Sum256([]byte(secret))
		s.key = key[:]
	}
	return s
}

func (s *FileStore) conversationsDir() string {
	return filepath.Join(s.dir, "conversations")
}

func (s *FileStore) conversationPath(id string) string {
	return filepath.Join(s.conversationsDir(), id+".json")
}

// encryptedFile is the at-rest envelope around a sealed payload.
type encryptedFile struct {
	Encrypted bool   `json:"encrypted"`
	Data      string `json:"data"`
}

func (s *FileStore) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if s.key != nil {
		sealed, err := Encrypt(payload, s.key)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", filepath.Base(path), err)
		}
		payload, err = json.MarshalIndent(encryptedFile{
			Encrypted: true,
			Data:      base64.StdEncoding.EncodeToString(sealed),
		}, "", "  ")
		if err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, payload, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *FileStore) readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var envelope encryptedFile
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Encrypted {
		if s.key == nil {
			return fmt.Errorf("%s is encrypted and no secret is configured", filepath.Base(path))
		}
		sealed, err := base64.StdEncoding.DecodeString(envelope.Data)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
		}
		raw, err = Decrypt(sealed, s.key)
		if err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", filepath.Base(path), err)
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// CreateConversation starts a new stored transcript. An empty id gets a fresh
// one assigned.
func (s *FileStore) CreateConversation(id, title string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = s.newID()
	}
	conv := &Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
		Messages:  []*ChatMessage{},
	}
	if err := s.writeJSON(s.conversationPath(id), conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Conversation loads a stored transcript by id.
func (s *FileStore) Conversation(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadConversationLocked(id)
}

func (s *FileStore) loadConversationLocked(id string) (*Conversation, error) {
	var conv Conversation
	if err := s.readJSON(s.conversationPath(id), &conv); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("conversation %s not found", id)
		}
		return nil, err
	}
	return &conv, nil
}

// SaveMessage appends the message to its conversation, replacing any earlier
// copy with the same id so repeated saves stay idempotent. The first human
// turn titles an untitled conversation.
func (s *FileStore) SaveMessage(msg *ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.loadConversationLocked(msg.ConversationID)
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range conv.Messages {
		if existing.ID == msg.ID {
			conv.Messages[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		conv.Messages = append(conv.Messages, msg)
	}

	if conv.Title == "" && msg.Role == RoleUser && !msg.ToolCarrier {
		conv.Title = truncateTitle(msg.Text())
	}
	conv.UpdatedAt = s.now()
	return s.writeJSON(s.conversationPath(conv.ID), conv)
}

// Messages returns the stored transcript of a conversation in order.
func (s *FileStore) Messages(conversationID string) ([]*ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.loadConversationLocked(conversationID)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

// ListConversations returns metadata for every stored conversation, most
// recently updated first.
func (s *FileStore) ListConversations() ([]ConversationMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.conversationsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ConversationMeta{}, nil
		}
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	metas := make([]ConversationMeta, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		conv, err := s.loadConversationLocked(strings.TrimSuffix(name, ".json"))
		if err != nil {
			Log.Warn().Str("file", name).Err(err).Msg("skipping unreadable conversation")
			continue
		}
		metas = append(metas, ConversationMeta{
			ID:           conv.ID,
			Title:        conv.Title,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
			Preview:      conversationPreview(conv),
		})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].UpdatedAt.After(metas[j].UpdatedAt) })
	return metas, nil
}

// DeleteConversation removes a stored transcript.
func (s *FileStore) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.conversationPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("conversation %s not found", id)
		}
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (s *FileStore) loadSsoConfigsLocked() (map[string]SsoConfiguration, error) {
	configs := make(map[string]SsoConfiguration)
	err := s.readJSON(filepath.Join(s.dir, ssoConfigsFile), &configs)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return configs, nil
}

// ListSsoConfigs returns every saved SSO configuration, sorted by name.
func (s *FileStore) ListSsoConfigs() ([]SsoConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.loadSsoConfigsLocked()
	if err != nil {
		return nil, err
	}
	out := make([]SsoConfiguration, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SsoConfig looks up one saved configuration by id.
func (s *FileStore) SsoConfig(id string) (*SsoConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.loadSsoConfigsLocked()
	if err != nil {
		return nil, err
	}
	cfg, ok := configs[id]
	if !ok {
		return nil, fmt.Errorf("SSO configuration %s not found", id)
	}
	return &cfg, nil
}

// SaveSsoConfig inserts or updates a configuration. A missing id gets a fresh
// one; timestamps are maintained here.
func (s *FileStore) SaveSsoConfig(cfg *SsoConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.loadSsoConfigsLocked()
	if err != nil {
		return err
	}
	if cfg.ID == "" {
		cfg.ID = s.newID()
	}
	if cfg.CreatedAt.IsZero() {
		if existing, ok := configs[cfg.ID]; ok {
			cfg.CreatedAt = existing.CreatedAt
		} else {
			cfg.CreatedAt = s.now()
		}
	}
	cfg.UpdatedAt = s.now()
	configs[cfg.ID] = *cfg
	return s.writeJSON(filepath.Join(s.dir, ssoConfigsFile), configs)
}

// DeleteSsoConfig removes a configuration by id.
func (s *FileStore) DeleteSsoConfig(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.loadSsoConfigsLocked()
	if err != nil {
		return err
	}
	if _, ok := configs[id]; !ok {
		return fmt.Errorf("SSO configuration %s not found", id)
	}
	delete(configs, id)
	return s.writeJSON(filepath.Join(s.dir, ssoConfigsFile), configs)
}

func (s *FileStore) loadSettingsLocked() (map[string]string, error) {
	settings := make(map[string]string)
	err := s.readJSON(filepath.Join(s.dir, settingsFile), &settings)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return settings, nil
}

// Setting returns the stored value for key, or "" when unset.
func (s *FileStore) Setting(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.loadSettingsLocked()
	if err != nil {
		return "", err
	}
	return settings[key], nil
}

// SetSetting stores a key/value pair. An empty value removes the key.
func (s *FileStore) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.loadSettingsLocked()
	if err != nil {
		return err
	}
	if value == "" {
		delete(settings, key)
	} else {
		settings[key] = value
	}
	return s.writeJSON(filepath.Join(s.dir, settingsFile), settings)
}

func truncateTitle(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= 50 {
		return text
	}
	return strings.TrimSpace(string(runes[:47])) + "..."
}

func conversationPreview(conv *Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		msg := conv.Messages[i]
		if msg.ToolCarrier {
			continue
		}
		if text := strings.TrimSpace(msg.Text()); text != "" {
			runes := []rune(text)
			if len(runes) > 80 {
				return string(runes[:77]) + "..."
			}
			return text
		}
	}
	return ""
}
