package internal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStoreDir(t *testing.T, secret string) *FileStore {
	t.Helper()
	store := NewFileStore(t.TempDir(), secret)
	store.now = newFakeClock().Now
	return store
}

func TestFileStoreConversationRoundTrip(t *testing.T) {
	store := newTestStoreDir(t, "")

	// 1. Create, then save a user turn and an assistant turn
	conv, err := store.CreateConversation("", "")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected an assigned conversation id")
	}

	user := &ChatMessage{
		ID:             "m-1",
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        []ContentBlock{TextBlock{Text: "What time is it?"}},
		Timestamp:      time.Now(),
	}
	assistant := &ChatMessage{
		ID:             "m-2",
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content: []ContentBlock{
			TextBlock{Text: "Let me check."},
			ToolUseBlock{ToolUseID: "tu-1", Name: "current_time", Input: map[string]any{}},
		},
		Timestamp:  time.Now(),
		StopReason: StopToolUse,
	}
	if err := store.SaveMessage(user); err != nil {
		t.Fatalf("SaveMessage(user) failed: %v", err)
	}
	if err := store.SaveMessage(assistant); err != nil {
		t.Fatalf("SaveMessage(assistant) failed: %v", err)
	}

	// 2. Messages come back in order with their block types intact
	messages, err := store.Messages(conv.ID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Text() != "What time is it?" {
		t.Errorf("unexpected first message %q", messages[0].Text())
	}
	uses := messages[1].ToolUses()
	if len(uses) != 1 || uses[0].Name != "current_time" {
		t.Errorf("tool use did not survive the round trip: %+v", messages[1].Content)
	}
	if messages[1].StopReason != StopToolUse {
		t.Errorf("stop reason lost: %q", messages[1].StopReason)
	}

	// 3. The first human turn titles the conversation
	metas, err := store.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(metas) != 1 || metas[0].Title != "What time is it?" {
		t.Errorf("unexpected listing %+v", metas)
	}
	if metas[0].MessageCount != 2 {
		t.Errorf("expected 2 messages in meta, got %d", metas[0].MessageCount)
	}
}

func TestFileStoreSaveMessageReplacesById(t *testing.T) {
	store := newTestStoreDir(t, "")
	conv, _ := store.CreateConversation("conv-1", "t")

	msg := &ChatMessage{ID: "m-1", ConversationID: conv.ID, Role: RoleAssistant}
	if err := store.SaveMessage(msg); err != nil {
		t.Fatal(err)
	}

	// Saving again with the same id updates in place instead of duplicating.
	msg.Content = []ContentBlock{TextBlock{Text: "final"}}
	msg.StopReason = StopEndTurn
	if err := store.SaveMessage(msg); err != nil {
		t.Fatal(err)
	}

	messages, _ := store.Messages(conv.ID)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Text() != "final" || messages[0].StopReason != StopEndTurn {
		t.Errorf("replacement not applied: %+v", messages[0])
	}
}

func TestFileStoreSaveMessageUnknownConversation(t *testing.T) {
	store := newTestStoreDir(t, "")
	err := store.SaveMessage(&ChatMessage{ID: "m-1", ConversationID: "nope", Role: RoleUser})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestFileStoreEncryptsAtRest(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, "hunter2")

	conv, err := store.CreateConversation("conv-1", "secret plans")
	if err != nil {
		t.Fatal(err)
	}
	msg := &ChatMessage{
		ID:             "m-1",
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        []ContentBlock{TextBlock{Text: "the launch code is 1234"}},
	}
	if err := store.SaveMessage(msg); err != nil {
		t.Fatal(err)
	}

	// 1. The raw file is an envelope, not the transcript
	raw, err := os.ReadFile(filepath.Join(dir, "conversations", "conv-1.json"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "launch code") {
		t.Error("plaintext leaked into the stored file")
	}
	var envelope encryptedFile
	if err := json.Unmarshal(raw, &envelope); err != nil || !envelope.Encrypted {
		t.Fatalf("expected an encrypted envelope, got %s", raw)
	}

	// 2. The same secret reads it back
	again := NewFileStore(dir, "hunter2")
	messages, err := again.Messages("conv-1")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if messages[0].Text() != "the launch code is 1234" {
		t.Errorf("decrypted text mismatch: %q", messages[0].Text())
	}

	// 3. The wrong secret fails, and no secret at all fails differently
	if _, err := NewFileStore(dir, "wrong").Messages("conv-1"); err == nil {
		t.Error("expected decryption failure with the wrong secret")
	}
	_, err = NewFileStore(dir, "").Messages("conv-1")
	if err == nil || !strings.Contains(err.Error(), "no secret") {
		t.Errorf("expected a missing-secret error, got %v", err)
	}
}

func TestFileStoreReadsPlaintextAfterSecretAdded(t *testing.T) {
	dir := t.TempDir()

	plain := NewFileStore(dir, "")
	if err := plain.SetSetting("model_id", "custom.model-v1"); err != nil {
		t.Fatal(err)
	}

	// Files written before encryption was configured stay readable.
	sealed := NewFileStore(dir, "hunter2")
	value, err := sealed.Setting("model_id")
	if err != nil {
		t.Fatalf("Setting failed: %v", err)
	}
	if value != "custom.model-v1" {
		t.Errorf("expected plaintext fallback read, got %q", value)
	}
}

func TestFileStoreSsoConfigs(t *testing.T) {
	store := newTestStoreDir(t, "")

	// 1. Save assigns an id and timestamps
	cfg := &SsoConfiguration{
		Name:          "Acme Dev",
		SsoStartURL:   "https://acme.awsapps.com/start",
		SsoRegion:     "us-east-1",
		AccountID:     "111111111111",
		RoleName:      "DevAccess",
		BedrockRegion: "us-west-2",
	}
	if err := store.SaveSsoConfig(cfg); err != nil {
		t.Fatalf("SaveSsoConfig failed: %v", err)
	}
	if cfg.ID == "" || cfg.CreatedAt.IsZero() || cfg.UpdatedAt.IsZero() {
		t.Fatalf("expected id and timestamps assigned: %+v", cfg)
	}

	// 2. Lookup and listing
	loaded, err := store.SsoConfig(cfg.ID)
	if err != nil {
		t.Fatalf("SsoConfig failed: %v", err)
	}
	if loaded.Name != "Acme Dev" || loaded.BedrockRegion != "us-west-2" {
		t.Errorf("unexpected config %+v", loaded)
	}
	second := &SsoConfiguration{Name: "Beta Prod", SsoStartURL: "https://beta.awsapps.com/start", SsoRegion: "eu-west-1", BedrockRegion: "eu-west-1"}
	if err := store.SaveSsoConfig(second); err != nil {
		t.Fatal(err)
	}
	configs, err := store.ListSsoConfigs()
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) != 2 || configs[0].Name != "Acme Dev" || configs[1].Name != "Beta Prod" {
		t.Errorf("expected name-sorted configs, got %+v", configs)
	}

	// 3. Update keeps CreatedAt
	created := cfg.CreatedAt
	cfg.CreatedAt = time.Time{}
	cfg.Name = "Acme Development"
	if err := store.SaveSsoConfig(cfg); err != nil {
		t.Fatal(err)
	}
	updated, _ := store.SsoConfig(cfg.ID)
	if !updated.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on update: %v vs %v", updated.CreatedAt, created)
	}
	if updated.Name != "Acme Development" {
		t.Errorf("update not applied: %q", updated.Name)
	}

	// 4. Delete, and delete again fails
	if err := store.DeleteSsoConfig(cfg.ID); err != nil {
		t.Fatalf("DeleteSsoConfig failed: %v", err)
	}
	if _, err := store.SsoConfig(cfg.ID); err == nil {
		t.Error("expected lookup failure after delete")
	}
	if err := store.DeleteSsoConfig(cfg.ID); err == nil {
		t.Error("expected error deleting a missing config")
	}
}

func TestFileStoreSettings(t *testing.T) {
	store := newTestStoreDir(t, "")

	if value, err := store.Setting("missing"); err != nil || value != "" {
		t.Errorf("expected empty value for unset key, got %q, %v", value, err)
	}
	if err := store.SetSetting("session_duration_minutes", "45"); err != nil {
		t.Fatal(err)
	}
	if value, _ := store.Setting("session_duration_minutes"); value != "45" {
		t.Errorf("expected 45, got %q", value)
	}

	// Empty value removes the key.
	if err := store.SetSetting("session_duration_minutes", ""); err != nil {
		t.Fatal(err)
	}
	if value, _ := store.Setting("session_duration_minutes"); value != "" {
		t.Errorf("expected removed key, got %q", value)
	}
}

func TestFileStoreDeleteConversation(t *testing.T) {
	store := newTestStoreDir(t, "")
	store.CreateConversation("conv-1", "t")

	if err := store.DeleteConversation("conv-1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if _, err := store.Messages("conv-1"); err == nil {
		t.Error("expected missing conversation after delete")
	}
	if err := store.DeleteConversation("conv-1"); err == nil {
		t.Error("expected error deleting twice")
	}
}

func TestTruncateTitle(t *testing.T) {
	long := strings.Repeat("спасибо ", 20)
	got := truncateTitle(long)
	if len([]rune(got)) > 50 {
		t.Errorf("title too long: %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got %q", got)
	}
	if truncateTitle("  short  ") != "short" {
		t.Errorf("expected trimmed title")
	}
}
