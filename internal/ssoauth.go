package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc/types"
	"github.com/aws/smithy-go"
)

const (
	oidcClientName   = "chatctl"
	oidcClientType   = "public"
	oidcDefaultScope = "sso:account:access"
	deviceGrantType  = "urn:ietf:params:oauth:grant-type:device_code"

	// Server-advertised values win; these apply when the response omits them.
	defaultPollInterval = 5 * time.Second
	defaultAuthExpiry   = 10 * time.Minute
)

// oidcAPI is the slice of the SSO OIDC client the engine uses.
type oidcAPI interface {
	RegisterClient(ctx context.Context, params *ssooidc.RegisterClientInput, optFns ...func(*ssooidc.Options)) (*ssooidc.RegisterClientOutput, error)
	StartDeviceAuthorization(ctx context.Context, params *ssooidc.StartDeviceAuthorizationInput, optFns ...func(*ssooidc.Options)) (*ssooidc.StartDeviceAuthorizationOutput, error)
	CreateToken(ctx context.Context, params *ssooidc.CreateTokenInput, optFns ...func(*ssooidc.Options)) (*ssooidc.CreateTokenOutput, error)
}

// DeviceAuthEngine drives the OIDC device-authorization flow:
// registering → authorizing → polling → complete/error. One engine instance
// serves the whole process; each login attempt runs the machine once.
//
// Two entry points share the machine: LoginForProfile caches the token for the
// standard credential-provider chain and returns nothing, DeviceAuth returns a
// bearer token for account/role discovery, consulting both cache layers first.
type DeviceAuthEngine struct {
	cache *TokenCache

	// overridable for tests
	newClient func(region string) oidcAPI
	openURL   func(string)
	now       func() time.Time
	wait      func(ctx context.Context, d time.Duration) error
}

func NewDeviceAuthEngine(cache *TokenCache) *DeviceAuthEngine {
	return &DeviceAuthEngine{
		cache:     cache,
		newClient: newOidcClient,
		openURL:   OpenURL,
		now:       time.Now,
		wait:      sleepCtx,
	}
}

func newOidcClient(region string) oidcAPI {
	// Device authorization is unauthenticated; the minimum-TLS policy comes
	// from the shared HTTP client.
	return ssooidc.New(ssooidc.Options{
		Region:      region,
		Credentials: aws.AnonymousCredentials{},
		HTTPClient:  apiHTTPClient,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LoginForProfile runs the full device-authorization flow for a profile's SSO
// session and leaves the token in the caches, keyed by the session name when
// one is configured. The token is not returned: profile credential resolution
// reads it back through the standard provider chain.
func (e *DeviceAuthEngine) LoginForProfile(ctx context.Context, startURL, ssoRegion, sessionName, scopes string, sink ProgressSink) error {
	_, err := e.run(ctx, loginRequest{
		startURL:    startURL,
		region:      ssoRegion,
		sessionName: sessionName,
		scopes:      scopes,
	}, sink)
	return err
}

// DeviceAuth returns a usable bearer token for (startURL, ssoRegion): memory
// cache first, file cache second, full device authorization last.
func (e *DeviceAuthEngine) DeviceAuth(ctx context.Context, startURL, ssoRegion string, sink ProgressSink) (*DeviceAuthResult, error) {
	if result := e.CachedToken(startURL); result != nil {
		return result, nil
	}
	return e.run(ctx, loginRequest{startURL: startURL, region: ssoRegion}, sink)
}

// HasCachedLogin reports whether a valid token is already on disk under the
// same key the credential-provider chain reads.
func (e *DeviceAuthEngine) HasCachedLogin(startURL, sessionName string) bool {
	return e.cache.ReadFile(startURL, sessionName) != nil
}

// CachedToken returns a valid cached token for startURL without starting a
// device authorization, or nil when neither cache layer has one.
func (e *DeviceAuthEngine) CachedToken(startURL string) *DeviceAuthResult {
	if result := e.cache.Memory(startURL); result != nil {
		return result
	}
	if result := e.cache.ReadFile(startURL, ""); result != nil {
		e.cache.PutMemory(result)
		return result
	}
	return nil
}

type loginRequest struct {
	startURL    string
	region      string
	sessionName string
	scopes      string // comma-separated; empty means the default scope
}

func (e *DeviceAuthEngine) run(ctx context.Context, req loginRequest, sink ProgressSink) (*DeviceAuthResult, error) {
	if sink == nil {
		sink = discardProgress
	}
	fail := func(err error) (*DeviceAuthResult, error) {
		sink(LoginProgress{Stage: StageError, Message: err.Error()})
		return nil, err
	}

	client := e.newClient(req.region)

	sink(LoginProgress{Stage: StageRegistering, Message: "Registering OIDC client"})
	reg, err := e.register(ctx, client, req.scopes)
	if err != nil {
		return fail(err)
	}

	sink(LoginProgress{Stage: StageAuthorizing, Message: "Starting device authorization"})
	auth, err := e.authorize(ctx, client, reg, req.startURL)
	if err != nil {
		return fail(err)
	}

	sink(LoginProgress{
		Stage:           StagePolling,
		VerificationURI: auth.verificationURI,
		UserCode:        auth.userCode,
	})
	if uri := auth.verificationURIComplete; uri != "" {
		e.openURL(uri)
	} else {
		e.openURL(auth.verificationURI)
	}

	result, err := e.poll(ctx, client, reg, auth, req)
	if err != nil {
		return fail(err)
	}
	sink(LoginProgress{Stage: StageComplete})
	return result, nil
}

type registeredClient struct {
	id     string
	secret string
}

func (e *DeviceAuthEngine) register(ctx context.Context, client oidcAPI, scopes string) (registeredClient, error) {
	out, err := client.RegisterClient(ctx, &ssooidc.RegisterClientInput{
		ClientName: aws.String(oidcClientName),
		ClientType: aws.String(oidcClientType),
		Scopes:     splitScopes(scopes),
	})
	if err != nil {
		return registeredClient{}, fmt.Errorf("client registration failed: %w", err)
	}
	if out.ClientId == nil || out.ClientSecret == nil {
		return registeredClient{}, errors.New("client registration returned no client id/secret")
	}
	return registeredClient{id: *out.ClientId, secret: *out.ClientSecret}, nil
}

type deviceAuthorization struct {
	deviceCode              string
	userCode                string
	verificationURI         string
	verificationURIComplete string
	interval                time.Duration
	expiresIn               time.Duration
}

func (e *DeviceAuthEngine) authorize(ctx context.Context, client oidcAPI, reg registeredClient, startURL string) (deviceAuthorization, error) {
	out, err := client.StartDeviceAuthorization(ctx, &ssooidc.StartDeviceAuthorizationInput{
		ClientId:     aws.String(reg.id),
		ClientSecret: aws.String(reg.secret),
		StartUrl:     aws.String(startURL),
	})
	if err != nil {
		return deviceAuthorization{}, fmt.Errorf("device authorization failed: %w", err)
	}
	if out.DeviceCode == nil || out.VerificationUri == nil {
		return deviceAuthorization{}, errors.New("device authorization returned no device code")
	}
	auth := deviceAuthorization{
		deviceCode:      *out.DeviceCode,
		verificationURI: *out.VerificationUri,
		interval:        defaultPollInterval,
		expiresIn:       defaultAuthExpiry,
	}
	if out.UserCode != nil {
		auth.userCode = *out.UserCode
	}
	if out.VerificationUriComplete != nil {
		auth.verificationURIComplete = *out.VerificationUriComplete
	}
	if out.Interval > 0 {
		auth.interval = time.Duration(out.Interval) * time.Second
	}
	if out.ExpiresIn > 0 {
		auth.expiresIn = time.Duration(out.ExpiresIn) * time.Second
	}
	return auth, nil
}

func (e *DeviceAuthEngine) poll(ctx context.Context, client oidcAPI, reg registeredClient, auth deviceAuthorization, req loginRequest) (*DeviceAuthResult, error) {
	deadline := e.now().Add(auth.expiresIn)
	for {
		if e.now().After(deadline) {
			return nil, errors.New("device authorization timed out")
		}
		if err := e.wait(ctx, auth.interval); err != nil {
			return nil, err
		}

		out, err := client.CreateToken(ctx, &ssooidc.CreateTokenInput{
			ClientId:     aws.String(reg.id),
			ClientSecret: aws.String(reg.secret),
			DeviceCode:   aws.String(auth.deviceCode),
			GrantType:    aws.String(deviceGrantType),
		})
		switch {
		case err == nil:
			if out.AccessToken == nil {
				return nil, errors.New("token response missing access token")
			}
			return e.complete(req, *out.AccessToken, out.ExpiresIn)
		case isAuthorizationPending(err):
			Log.Debug().Msg("authorization pending")
		case isSlowDown(err):
			// The server asks for one extra interval, not a growing backoff.
			Log.Debug().Dur("extra", auth.interval).Msg("server requested slow down")
			if err := e.wait(ctx, auth.interval); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("device authorization failed: %w", err)
		}
	}
}

func (e *DeviceAuthEngine) complete(req loginRequest, accessToken string, expiresIn int32) (*DeviceAuthResult, error) {
	expiresAt := e.now().Add(time.Duration(expiresIn) * time.Second).UnixMilli()
	if err := e.cache.Write(req.startURL, req.sessionName, accessToken, req.region, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to cache token: %w", err)
	}
	return &DeviceAuthResult{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		Region:      req.region,
		StartURL:    req.startURL,
	}, nil
}

func splitScopes(scopes string) []string {
	out := make([]string, 0, 2)
	for _, scope := range strings.Split(scopes, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			out = append(out, scope)
		}
	}
	if len(out) == 0 {
		return []string{oidcDefaultScope}
	}
	return out
}

func isAuthorizationPending(err error) bool {
	var pending *types.AuthorizationPendingException
	if errors.As(err, &pending) {
		return true
	}
	return apiErrorCode(err) == "AuthorizationPendingException"
}

func isSlowDown(err error) bool {
	var slow *types.SlowDownException
	if errors.As(err, &slow) {
		return true
	}
	return apiErrorCode(err) == "SlowDownException"
}

func apiErrorCode(err error) string {
	var api smithy.APIError
	if errors.As(err, &api) {
		return api.ErrorCode()
	}
	return ""
}
