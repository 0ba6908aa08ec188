package internal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Setting keys understood by the app layer.
const (
	SettingModelID         = "model_id"
	SettingSystemPrompt    = "system_prompt"
	SettingSessionDuration = "session_duration_minutes"
)

const defaultSessionMinutes = 60

// Rate-limit buckets. Each surface operation draws from its own bucket so a
// chatty stream cannot lock the user out of, say, disconnecting.
const (
	bucketConnect     = "connect"
	bucketDeviceAuth  = "device-auth"
	bucketDiscovery   = "discovery"
	bucketProfiles    = "profiles"
	bucketChatSend    = "chat-send"
	bucketAbort       = "abort"
	bucketToolExecute = "tool-execute"
	bucketStatus      = "status"
)

type ratePolicy struct {
	max    int
	window time.Duration
}

func defaultRatePolicies() map[string]ratePolicy {
	return map[string]ratePolicy{
		bucketConnect:     {max: 5, window: time.Minute},
		bucketDeviceAuth:  {max: 3, window: time.Minute},
		bucketDiscovery:   {max: 20, window: time.Minute},
		bucketProfiles:    {max: 30, window: time.Minute},
		bucketChatSend:    {max: 20, window: time.Minute},
		bucketAbort:       {max: 30, window: time.Minute},
		bucketToolExecute: {max: 30, window: time.Minute},
		bucketStatus:      {max: 60, window: time.Minute},
	}
}

// errRateLimited carries the exact message the surface reports on rejection.
var errRateLimited = errors.New("Rate limit exceeded. Please try again in a moment.")

// SendParams is one user turn heading to the model.
type SendParams struct {
	ConversationID string
	Text           string
	Images         []ImageBlock
	Documents      []DocumentBlock
	System         string
}

// SendResult identifies the stream a send started.
type SendResult struct {
	RequestID      string `json:"requestId"`
	ConversationID string `json:"conversationId"`
}

// App is the composition root: it owns every component and exposes the
// rate-limited command surface the UI layers call.
type App struct {
	Store      *FileStore
	Limiter    *RateLimiter
	Cache      *TokenCache
	Engine     *DeviceAuthEngine
	Discovery  *Discovery
	Creds      *CredentialStore
	Registry   *ToolRegistry
	Gateway    *ModelGateway
	Controller *StreamController
	Orch       *ToolOrchestrator
	Notifier   *Notifier

	invoker    Invoker
	streamSink EventSink
	policies   map[string]ratePolicy

	mu     sync.Mutex
	conv   *Conversation
	wizard *wizardAuth
}

// wizardAuth is the setup wizard's server-side state: which start URL the
// last device authorization ran against. The token itself stays in the
// engine's caches and is never returned to a caller.
type wizardAuth struct {
	startURL string
	region   string
}

// NewApp wires the full component graph on top of the given store.
func NewApp(store *FileStore) *App {
	cache := NewTokenCache()
	engine := NewDeviceAuthEngine(cache)
	discovery := NewDiscovery()
	creds := NewCredentialStore(engine, discovery)
	registry := NewToolRegistry()
	RegisterBuiltinTools(registry)

	app := &App{
		Store:     store,
		Limiter:   NewRateLimiter(),
		Cache:     cache,
		Engine:    engine,
		Discovery: discovery,
		Creds:     creds,
		Registry:  registry,
		Notifier:  NewNotifier(),
		policies:  defaultRatePolicies(),
	}
	app.Gateway = NewModelGateway(creds, registry, func() string {
		id, _ := store.Setting(SettingModelID)
		return id
	})
	app.invoker = app.Gateway
	app.streamSink = func(event StreamEvent) {
		app.Controller.HandleEvent(event)
		app.Notifier.PublishStream(event)
	}
	app.Controller = NewStreamController(func(m *ChatMessage) { app.Orch.HandleFinalized(m) })
	app.Orch = NewToolOrchestrator(registry, app.invoker, app.Controller, app.streamSink, app.persistMessage)
	return app
}

// persistMessage saves a finalized or synthesized message. Storage failures
// are logged, not propagated: the tool loop and the visible stream must keep
// going even when the disk does not.
func (a *App) persistMessage(msg *ChatMessage) {
	if err := a.Store.SaveMessage(msg); err != nil {
		Log.Warn().Str("message", msg.ID).Err(err).Msg("failed to persist message")
	}
}

func (a *App) allow(bucket string) error {
	policy, ok := a.policies[bucket]
	if !ok {
		policy = ratePolicy{max: 30, window: time.Minute}
	}
	if !a.Limiter.Allow(bucket, policy.max, policy.window) {
		return errRateLimited
	}
	return nil
}

// ListProfiles returns the profiles found in the shared AWS config file.
func (a *App) ListProfiles() ([]AwsProfile, error) {
	if err := a.allow(bucketProfiles); err != nil {
		return nil, err
	}
	return ListProfiles()
}

// ConnectWithProfile resolves credentials through a named profile and arms
// the session timer.
func (a *App) ConnectWithProfile(ctx context.Context, profileName, region string) error {
	if err := a.allow(bucketConnect); err != nil {
		return err
	}
	if err := a.Creds.ResolveViaProfile(ctx, profileName, region, a.Notifier.PublishLogin); err != nil {
		return err
	}
	a.afterConnect(ctx)
	return nil
}

// ConnectWithSsoConfig resolves credentials through a saved SSO configuration
// and arms the session timer.
func (a *App) ConnectWithSsoConfig(ctx context.Context, configID string) error {
	if err := a.allow(bucketConnect); err != nil {
		return err
	}
	cfg, err := a.Store.SsoConfig(configID)
	if err != nil {
		return err
	}
	if err := a.Creds.ResolveViaSsoConfig(ctx, *cfg, a.Notifier.PublishLogin); err != nil {
		return err
	}
	a.afterConnect(ctx)
	return nil
}

// afterConnect runs the post-connect routine: best-effort identity
// verification for the status surface, then the session-duration timer.
func (a *App) afterConnect(ctx context.Context) {
	if err := a.Creds.VerifyIdentity(ctx); err != nil {
		Log.Warn().Err(err).Msg("identity verification failed")
	}
	minutes := a.sessionMinutes()
	if minutes == 0 {
		return
	}
	a.Creds.StartSessionTimer(minutes, func() {
		Log.Warn().Msg("session expired, credentials cleared")
		a.Notifier.Publish(Notification{SessionExpired: true})
	})
}

func (a *App) sessionMinutes() int {
	raw, err := a.Store.Setting(SettingSessionDuration)
	if err != nil || raw == "" {
		return defaultSessionMinutes
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 0 {
		Log.Warn().Str("value", raw).Msg("invalid session duration setting, using default")
		return defaultSessionMinutes
	}
	// 0 means no expiry timer.
	return minutes
}

// Disconnect drops the connection and wipes credentials.
func (a *App) Disconnect() {
	a.Creds.Disconnect()
}

// ConnectionStatus reports the current connection snapshot.
func (a *App) ConnectionStatus() (ConnectionStatus, error) {
	if err := a.allow(bucketStatus); err != nil {
		return ConnectionStatus{}, err
	}
	return a.Creds.Status(), nil
}

// StartDeviceAuth runs the wizard's device authorization for a start URL and
// keeps the result server-side for the discovery calls that follow. The
// bearer token is never returned.
func (a *App) StartDeviceAuth(ctx context.Context, startURL, region string) error {
	if err := a.allow(bucketDeviceAuth); err != nil {
		return err
	}
	if startURL == "" || region == "" {
		return errors.New("start URL and region are required")
	}
	if _, err := a.Engine.DeviceAuth(ctx, startURL, region, a.Notifier.PublishLogin); err != nil {
		return err
	}
	a.mu.Lock()
	a.wizard = &wizardAuth{startURL: startURL, region: region}
	a.mu.Unlock()
	return nil
}

// wizardToken returns the wizard's valid bearer token, or an error when no
// device authorization has completed (a precondition failure, distinct from
// any network failure the discovery call itself might hit).
func (a *App) wizardToken() (*DeviceAuthResult, string, error) {
	a.mu.Lock()
	wizard := a.wizard
	a.mu.Unlock()
	if wizard == nil {
		return nil, "", errors.New("no valid device authorization token; run device authorization first")
	}
	token := a.Engine.CachedToken(wizard.startURL)
	if !token.Valid(time.Now()) {
		return nil, "", errors.New("no valid device authorization token; run device authorization first")
	}
	return token, wizard.region, nil
}

// DiscoverAccounts lists the accounts the wizard's bearer token can see.
func (a *App) DiscoverAccounts(ctx context.Context) ([]Account, error) {
	if err := a.allow(bucketDiscovery); err != nil {
		return nil, err
	}
	token, region, err := a.wizardToken()
	if err != nil {
		return nil, err
	}
	return a.Discovery.ListAccounts(ctx, token.AccessToken, region)
}

// DiscoverRoles lists the roles available in one account.
func (a *App) DiscoverRoles(ctx context.Context, accountID string) ([]Role, error) {
	if err := a.allow(bucketDiscovery); err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, errors.New("account id is required")
	}
	token, region, err := a.wizardToken()
	if err != nil {
		return nil, err
	}
	return a.Discovery.ListRoles(ctx, token.AccessToken, region, accountID)
}

// SaveSsoConfig persists a configuration assembled by the wizard.
func (a *App) SaveSsoConfig(cfg *SsoConfiguration) error {
	if cfg.SsoStartURL == "" || cfg.SsoRegion == "" {
		return errors.New("SSO start URL and region are required")
	}
	return a.Store.SaveSsoConfig(cfg)
}

// DeleteSsoConfig removes a saved configuration. Deleting the configuration
// the current session came from zeroizes the live credentials.
func (a *App) DeleteSsoConfig(id string) error {
	if err := a.Store.DeleteSsoConfig(id); err != nil {
		return err
	}
	if a.Creds.Status().SsoConfigID == id {
		Log.Info().Str("config", id).Msg("active SSO configuration deleted, disconnecting")
		a.Creds.Disconnect()
	}
	return nil
}

// StartConversation begins a fresh transcript and makes it the active one.
func (a *App) StartConversation() (*Conversation, error) {
	conv, err := a.Store.CreateConversation("", "")
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.conv = conv
	a.mu.Unlock()
	return conv, nil
}

// ActiveConversation returns the transcript sends currently append to, or
// nil before the first send.
func (a *App) ActiveConversation() *Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conv
}

// activeConversation resolves the conversation a send targets, loading or
// creating as needed.
func (a *App) activeConversation(id string) (*Conversation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id == "" {
		if a.conv != nil {
			return a.conv, nil
		}
		conv, err := a.Store.CreateConversation("", "")
		if err != nil {
			return nil, err
		}
		a.conv = conv
		return conv, nil
	}
	if a.conv != nil && a.conv.ID == id {
		return a.conv, nil
	}
	conv, err := a.Store.Conversation(id)
	if err != nil {
		return nil, err
	}
	a.conv = conv
	return conv, nil
}

// SendMessage persists the user's turn and starts a streaming model call.
// The stream id comes back immediately; events, tool rounds, and the final
// assistant message flow through the notifier in the background.
func (a *App) SendMessage(params SendParams) (*SendResult, error) {
	if err := a.allow(bucketChatSend); err != nil {
		return nil, err
	}
	if !a.Creds.IsConnected() {
		return nil, errors.New("not connected — configure credentials first")
	}
	text := strings.TrimSpace(params.Text)
	if text == "" && len(params.Images) == 0 && len(params.Documents) == 0 {
		return nil, errors.New("message is empty")
	}

	conv, err := a.activeConversation(params.ConversationID)
	if err != nil {
		return nil, err
	}

	content := make([]ContentBlock, 0, 1+len(params.Images)+len(params.Documents))
	if text != "" {
		content = append(content, TextBlock{Text: text})
	}
	for _, img := range params.Images {
		content = append(content, img)
	}
	for _, doc := range params.Documents {
		content = append(content, doc)
	}

	user := &ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        content,
		Timestamp:      time.Now(),
	}
	conv.Messages = append(conv.Messages, user)
	a.persistMessage(user)

	system := params.System
	if system == "" {
		system, _ = a.Store.Setting(SettingSystemPrompt)
	}
	a.Orch.Begin(conv, system)

	history := make([]ChatMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		history = append(history, *m)
	}
	placeholder := &ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Timestamp:      time.Now(),
	}
	conv.Messages = append(conv.Messages, placeholder)

	requestID := startTracked(a.invoker, a.Controller, InvokeParams{Messages: history, System: system}, a.streamSink, placeholder)
	return &SendResult{RequestID: requestID, ConversationID: conv.ID}, nil
}

// AbortStream cancels an in-flight stream. Returns whether a live stream was
// found; a second abort on the same id reports false.
func (a *App) AbortStream(requestID string) (bool, error) {
	if err := a.allow(bucketAbort); err != nil {
		return false, err
	}
	return a.Gateway.Abort(requestID), nil
}

// ExecuteTool runs a registered tool directly, outside any model loop.
func (a *App) ExecuteTool(name string, input map[string]any) (ToolResult, error) {
	if err := a.allow(bucketToolExecute); err != nil {
		return ToolResult{}, err
	}
	if name == "" {
		return ToolResult{}, errors.New("tool name is required")
	}
	return a.Registry.Execute(name, input), nil
}

// IsRateLimited reports whether err is the rate limiter's rejection, for
// surfaces that render it specially.
func IsRateLimited(err error) bool {
	return errors.Is(err, errRateLimited)
}

// NormalizeError flattens any error into the string form the command surface
// exposes; internals never leak stack traces or typed errors across it.
func NormalizeError(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%v", err)
}
