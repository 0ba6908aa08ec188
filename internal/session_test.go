package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sso"
	ssotypes "github.com/aws/aws-sdk-go-v2/service/sso/types"
)

func validRoleCreds() *sso.GetRoleCredentialsOutput {
	return &sso.GetRoleCredentialsOutput{
		RoleCredentials: &ssotypes.RoleCredentials{
			AccessKeyId:     aws.String("AKIAEXAMPLE"),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("session"),
			Expiration:      time.Now().Add(time.Hour).UnixMilli(),
		},
	}
}

func newTestStore(t *testing.T, ssoApi *fakeSso) *CredentialStore {
	t.Helper()
	cache := NewTokenCache()
	cache.dir = t.TempDir()
	engine := NewDeviceAuthEngine(cache)
	discovery := NewDiscovery()
	discovery.newClient = func(region string) ssoAPI { return ssoApi }
	store := NewCredentialStore(engine, discovery)
	store.verifyIdentity = func(ctx context.Context, creds *Credentials, region string) (string, string, error) {
		return "111111111111", "arn:aws:sts::111111111111:assumed-role/Admin/chatctl", nil
	}
	return store
}

func primeToken(store *CredentialStore, startURL string) {
	store.engine.cache.PutMemory(&DeviceAuthResult{
		AccessToken: "bearer-token",
		ExpiresAt:   time.Now().Add(time.Hour).UnixMilli(),
		StartURL:    startURL,
	})
}

func testSsoConfig() SsoConfiguration {
	return SsoConfiguration{
		ID:            "cfg-1",
		Name:          "Acme Dev",
		SsoStartURL:   testStartURL,
		SsoRegion:     "us-east-1",
		AccountID:     "111111111111",
		RoleName:      "Admin",
		BedrockRegion: "us-west-2",
	}
}

func TestResolveViaSsoConfig(t *testing.T) {
	store := newTestStore(t, &fakeSso{roleCreds: validRoleCreds()})
	primeToken(store, testStartURL)

	if err := store.ResolveViaSsoConfig(context.Background(), testSsoConfig(), nil); err != nil {
		t.Fatalf("ResolveViaSsoConfig failed: %v", err)
	}

	if !store.IsConnected() {
		t.Fatal("store not connected")
	}
	if store.Region() != "us-west-2" {
		t.Errorf("Region = %q, want bedrock region", store.Region())
	}
	creds := store.Get()
	if creds.AccessKeyID() != "AKIAEXAMPLE" || creds.SessionToken() != "session" {
		t.Errorf("unexpected credentials: %q", creds.AccessKeyID())
	}

	status := store.Status()
	if !status.Connected || status.SsoConfigID != "cfg-1" || status.SsoConfigName != "Acme Dev" {
		t.Errorf("status = %+v", status)
	}
	if status.ProfileLabel != "" {
		t.Errorf("profile label should be clear, got %q", status.ProfileLabel)
	}
}

func TestResolveViaSsoConfigRequiresSelection(t *testing.T) {
	store := newTestStore(t, &fakeSso{roleCreds: validRoleCreds()})
	primeToken(store, testStartURL)

	cfg := testSsoConfig()
	cfg.AccountID = ""
	if err := store.ResolveViaSsoConfig(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for missing account")
	}
	if store.IsConnected() {
		t.Error("store connected despite invalid config")
	}
}

func TestResolveFailureLeavesUnconnected(t *testing.T) {
	api := &fakeSso{roleCreds: validRoleCreds()}
	store := newTestStore(t, api)
	primeToken(store, testStartURL)

	if err := store.ResolveViaSsoConfig(context.Background(), testSsoConfig(), nil); err != nil {
		t.Fatal(err)
	}
	first := store.Get()

	// A failing re-connect must wipe the old session and end unconnected.
	api.err = errors.New("portal unavailable")
	if err := store.ResolveViaSsoConfig(context.Background(), testSsoConfig(), nil); err == nil {
		t.Fatal("expected resolve error")
	}
	if store.IsConnected() {
		t.Error("store still connected after failed resolve")
	}
	if first.AccessKeyID() != "" || first.SecretAccessKey() != "" {
		t.Error("previous credentials were not wiped")
	}
}

func TestDisconnectZeroizes(t *testing.T) {
	store := newTestStore(t, &fakeSso{roleCreds: validRoleCreds()})
	primeToken(store, testStartURL)
	if err := store.ResolveViaSsoConfig(context.Background(), testSsoConfig(), nil); err != nil {
		t.Fatal(err)
	}

	creds := store.Get()
	store.Disconnect()

	// 1. The old credential object is wiped in place
	if creds.AccessKeyID() != "" || creds.SecretAccessKey() != "" || creds.SessionToken() != "" {
		t.Error("credential fields survived disconnect")
	}
	if !creds.Expiration.IsZero() {
		t.Error("expiration survived disconnect")
	}

	// 2. The store is fully cleared
	if store.Get() != nil || store.IsConnected() {
		t.Error("store still holds credentials")
	}
	status := store.Status()
	if status.Connected || status.Region != "" || status.SsoConfigID != "" {
		t.Errorf("status not cleared: %+v", status)
	}
}

func TestVerifyIdentityRecordsAccount(t *testing.T) {
	store := newTestStore(t, &fakeSso{roleCreds: validRoleCreds()})
	primeToken(store, testStartURL)
	if err := store.ResolveViaSsoConfig(context.Background(), testSsoConfig(), nil); err != nil {
		t.Fatal(err)
	}

	if err := store.VerifyIdentity(context.Background()); err != nil {
		t.Fatalf("VerifyIdentity failed: %v", err)
	}
	status := store.Status()
	if status.AccountID != "111111111111" || status.Arn == "" {
		t.Errorf("identity not recorded: %+v", status)
	}

	store.Disconnect()
	if err := store.VerifyIdentity(context.Background()); err == nil {
		t.Error("VerifyIdentity should fail when disconnected")
	}
}

func TestResolveViaProfile(t *testing.T) {
	writeAwsConfig(t, sampleAwsConfig)
	store := newTestStore(t, &fakeSso{})
	store.resolveProfile = func(ctx context.Context, profileName, region string) (*Credentials, string, error) {
		return NewCredentials("AKIAPLAIN", "secret", "", time.Time{}), "eu-west-1", nil
	}

	if err := store.ResolveViaProfile(context.Background(), "plain", "", nil); err != nil {
		t.Fatalf("ResolveViaProfile failed: %v", err)
	}
	status := store.Status()
	if status.ProfileLabel != "plain" || status.SsoConfigID != "" {
		t.Errorf("status = %+v", status)
	}
	if store.Region() != "eu-west-1" {
		t.Errorf("Region = %q", store.Region())
	}
}

func TestResolveViaProfileUsesCachedSsoToken(t *testing.T) {
	writeAwsConfig(t, sampleAwsConfig)
	store := newTestStore(t, &fakeSso{})
	// Token already on disk under the session name, so no device flow runs
	// (a login attempt here would hit the real network and fail the test).
	if err := store.engine.cache.Write("https://acme.awsapps.com/start", "acme", "tok", "us-east-1", time.Now().Add(time.Hour).UnixMilli()); err != nil {
		t.Fatal(err)
	}
	store.resolveProfile = func(ctx context.Context, profileName, region string) (*Credentials, string, error) {
		return NewCredentials("AKIASSO", "secret", "token", time.Now().Add(time.Hour)), "ap-southeast-1", nil
	}

	if err := store.ResolveViaProfile(context.Background(), "modern-sso", "", nil); err != nil {
		t.Fatalf("ResolveViaProfile failed: %v", err)
	}
	if !store.IsConnected() || store.Status().ProfileLabel != "modern-sso" {
		t.Errorf("status = %+v", store.Status())
	}
}

func TestSessionTimerDisconnects(t *testing.T) {
	store := newTestStore(t, &fakeSso{roleCreds: validRoleCreds()})
	primeToken(store, testStartURL)
	if err := store.ResolveViaSsoConfig(context.Background(), testSsoConfig(), nil); err != nil {
		t.Fatal(err)
	}

	fired := make(chan struct{})
	store.startTimer(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("session timer never fired")
	}
	if store.IsConnected() {
		t.Error("store still connected after timer expiry")
	}
}

func TestSessionTimerSuperseded(t *testing.T) {
	store := newTestStore(t, &fakeSso{roleCreds: validRoleCreds()})

	firstFired := make(chan struct{})
	secondFired := make(chan struct{})
	store.startTimer(50*time.Millisecond, func() { close(firstFired) })
	store.startTimer(10*time.Millisecond, func() { close(secondFired) })

	select {
	case <-secondFired:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement timer never fired")
	}
	select {
	case <-firstFired:
		t.Error("superseded timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
