package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
)

// CredentialStore owns the process's resolved AWS credentials. All identity
// state lives here: either a profile label or an SSO-configuration identity,
// never both. A resolve starts by disconnecting, so a failure leaves the
// store cleanly unconnected, never partially connected.
type CredentialStore struct {
	mu            sync.Mutex
	creds         *Credentials
	region        string
	profileLabel  string
	ssoConfigID   string
	ssoConfigName string
	accountID     string
	arn           string
	timer         *time.Timer
	timerGen      int

	engine    *DeviceAuthEngine
	discovery *Discovery

	// overridable for tests
	resolveProfile func(ctx context.Context, profileName, region string) (*Credentials, string, error)
	verifyIdentity func(ctx context.Context, creds *Credentials, region string) (accountID, arn string, err error)
}

func NewCredentialStore(engine *DeviceAuthEngine, discovery *Discovery) *CredentialStore {
	return &CredentialStore{
		engine:         engine,
		discovery:      discovery,
		resolveProfile: resolveProfileCredentials,
		verifyIdentity: stsCallerIdentity,
	}
}

// ResolveViaProfile connects through a shared-config profile. SSO-backed
// profiles run the full device login first (when no valid cached token
// exists); everything else resolves through the standard provider chain.
func (s *CredentialStore) ResolveViaProfile(ctx context.Context, profileName, region string, sink ProgressSink) error {
	s.Disconnect()

	details, isSso, err := ProfileSso(ctx, profileName)
	if err != nil {
		return err
	}
	if isSso && !s.engine.HasCachedLogin(details.StartURL, details.SessionName) {
		if err := s.engine.LoginForProfile(ctx, details.StartURL, details.Region, details.SessionName, "", sink); err != nil {
			return err
		}
	}

	creds, resolvedRegion, err := s.resolveProfile(ctx, profileName, region)
	if err != nil {
		return fmt.Errorf("failed to resolve credentials for profile %s: %w", profileName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(creds, resolvedRegion)
	s.profileLabel = profileName
	s.ssoConfigID = ""
	s.ssoConfigName = ""
	return nil
}

// ResolveViaSsoConfig connects through a saved SSO configuration: bearer token
// (cached or fresh device auth), then role credentials for the configured
// account/role pair.
func (s *CredentialStore) ResolveViaSsoConfig(ctx context.Context, cfg SsoConfiguration, sink ProgressSink) error {
	s.Disconnect()

	if cfg.AccountID == "" || cfg.RoleName == "" {
		return errors.New("SSO configuration has no account/role selected")
	}

	token, err := s.engine.DeviceAuth(ctx, cfg.SsoStartURL, cfg.SsoRegion, sink)
	if err != nil {
		return err
	}
	roleCreds, err := s.discovery.GetRoleCredentials(ctx, token.AccessToken, cfg.SsoRegion, cfg.AccountID, cfg.RoleName)
	if err != nil {
		return err
	}

	region := cfg.BedrockRegion
	if region == "" {
		region = cfg.SsoRegion
	}
	creds := NewCredentials(roleCreds.AccessKeyID, roleCreds.SecretAccessKey, roleCreds.SessionToken, roleCreds.Expiration)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(creds, region)
	s.ssoConfigID = cfg.ID
	s.ssoConfigName = cfg.Name
	s.profileLabel = ""
	return nil
}

// replaceLocked wipes any previous credentials and installs the new ones.
func (s *CredentialStore) replaceLocked(creds *Credentials, region string) {
	if s.creds != nil {
		s.creds.Zero()
	}
	s.creds = creds
	s.region = region
	s.accountID = ""
	s.arn = ""
}

// VerifyIdentity confirms the connection with a caller-identity call and
// records the account/ARN for status reporting. The connection stands even
// if verification fails.
func (s *CredentialStore) VerifyIdentity(ctx context.Context) error {
	s.mu.Lock()
	creds, region := s.creds, s.region
	s.mu.Unlock()
	if creds == nil {
		return errors.New("not connected")
	}

	accountID, arn, err := s.verifyIdentity(ctx, creds, region)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.accountID = accountID
	s.arn = arn
	s.mu.Unlock()
	return nil
}

// Get returns the live credentials, or nil when disconnected. The pointer
// stays owned by the store; callers must not retain it.
func (s *CredentialStore) Get() *Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

func (s *CredentialStore) Region() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

func (s *CredentialStore) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds != nil
}

// Status reports a snapshot of the connection for the status surface.
func (s *CredentialStore) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := ConnectionStatus{
		Connected:     s.creds != nil,
		Region:        s.region,
		ProfileLabel:  s.profileLabel,
		SsoConfigID:   s.ssoConfigID,
		SsoConfigName: s.ssoConfigName,
		AccountID:     s.accountID,
		Arn:           s.arn,
	}
	if s.creds != nil {
		status.Expiration = s.creds.Expiration
	}
	return status
}

// Disconnect wipes the credential bytes, clears all identity fields, and
// cancels any running session timer.
func (s *CredentialStore) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

func (s *CredentialStore) disconnectLocked() {
	if s.creds != nil {
		s.creds.Zero()
		s.creds = nil
	}
	s.region = ""
	s.profileLabel = ""
	s.ssoConfigID = ""
	s.ssoConfigName = ""
	s.accountID = ""
	s.arn = ""
	s.stopTimerLocked()
}

func (s *CredentialStore) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

// StartSessionTimer arms the session-expiry timer. Firing disconnects first,
// then runs onExpired. Starting a new timer cancels the previous one; the
// store never has two live timers.
func (s *CredentialStore) StartSessionTimer(minutes int, onExpired func()) {
	s.startTimer(time.Duration(minutes)*time.Minute, onExpired)
}

func (s *CredentialStore) startTimer(duration time.Duration, onExpired func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	gen := s.timerGen
	s.timer = time.AfterFunc(duration, func() {
		s.mu.Lock()
		if gen != s.timerGen {
			// A newer timer or a disconnect superseded this one.
			s.mu.Unlock()
			return
		}
		s.disconnectLocked()
		s.mu.Unlock()
		if onExpired != nil {
			onExpired()
		}
	})
}

// resolveProfileCredentials runs the standard shared-config provider chain
// for a profile: static keys, assume-role chains, and SSO profiles whose
// token cache is already primed.
func resolveProfileCredentials(ctx context.Context, profileName, region string) (*Credentials, string, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithSharedConfigProfile(profileName),
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, "", err
	}
	retrieved, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, "", err
	}
	var expiration time.Time
	if retrieved.CanExpire {
		expiration = retrieved.Expires
	}
	return NewCredentials(retrieved.AccessKeyID, retrieved.SecretAccessKey, retrieved.SessionToken, expiration), cfg.Region, nil
}
