package internal

import "time"

// Credentials holds resolved short-lived AWS credentials. Fields are byte
// slices, not strings, so Zero can actually wipe them before the reference
// is dropped.
type Credentials struct {
	accessKeyID     []byte
	secretAccessKey []byte
	sessionToken    []byte
	Expiration      time.Time
}

func NewCredentials(accessKeyID, secretAccessKey, sessionToken string, expiration time.Time) *Credentials {
	return &Credentials{
		accessKeyID:     []byte(accessKeyID),
		secretAccessKey: []byte(secretAccessKey),
		sessionToken:    []byte(sessionToken),
		Expiration:      expiration,
	}
}

func (c *Credentials) AccessKeyID() string     { return string(c.accessKeyID) }
func (c *Credentials) SecretAccessKey() string { return string(c.secretAccessKey) }
func (c *Credentials) SessionToken() string    { return string(c.sessionToken) }

// Zero overwrites every credential byte. Best-effort: copies handed to the
// signer earlier are out of reach, but the long-lived buffers are wiped.
func (c *Credentials) Zero() {
	wipe(c.accessKeyID)
	wipe(c.secretAccessKey)
	wipe(c.sessionToken)
	c.accessKeyID = c.accessKeyID[:0]
	c.secretAccessKey = c.secretAccessKey[:0]
	c.sessionToken = c.sessionToken[:0]
	c.Expiration = time.Time{}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// SsoConfiguration is a saved SSO identity: where to authenticate, which
// account/role to assume, and which region to run Bedrock in.
type SsoConfiguration struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SsoStartURL   string    `json:"sso_start_url"`
	SsoRegion     string    `json:"sso_region"`
	AccountID     string    `json:"account_id,omitempty"`
	AccountName   string    `json:"account_name,omitempty"`
	RoleName      string    `json:"role_name,omitempty"`
	BedrockRegion string    `json:"bedrock_region"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CachedToken is the on-disk token record. The JSON layout matches the AWS
// CLI's ~/.aws/sso/cache files so the shared credential chain can reuse it.
type CachedToken struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   string `json:"expiresAt"`
	Region      string `json:"region"`
	StartURL    string `json:"startUrl"`
}

// DeviceAuthResult is the in-memory form of a completed device authorization.
// ExpiresAt is epoch milliseconds.
type DeviceAuthResult struct {
	AccessToken string
	ExpiresAt   int64
	Region      string
	StartURL    string
}

// Valid reports whether the token is still usable at time now.
func (r *DeviceAuthResult) Valid(now time.Time) bool {
	return r != nil && r.AccessToken != "" && r.ExpiresAt > now.UnixMilli()
}

// Account is one entry from the SSO account listing.
type Account struct {
	AccountID    string `json:"accountId"`
	AccountName  string `json:"accountName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// Role is one entry from the SSO role listing for an account.
type Role struct {
	RoleName  string `json:"roleName"`
	AccountID string `json:"accountId"`
}

// RoleCredentials is the result of an SSO role-credential fetch.
type RoleCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// AwsProfile describes one profile found in the shared AWS config file.
type AwsProfile struct {
	Name        string `json:"name"`
	Region      string `json:"region,omitempty"`
	SsoStartURL string `json:"ssoStartUrl,omitempty"`
	SsoSession  string `json:"ssoSession,omitempty"`
	IsSso       bool   `json:"isSso"`
}

// ConnectionStatus is the snapshot reported over the command surface.
type ConnectionStatus struct {
	Connected     bool      `json:"connected"`
	Region        string    `json:"region,omitempty"`
	ProfileLabel  string    `json:"profile,omitempty"`
	SsoConfigID   string    `json:"ssoConfigId,omitempty"`
	SsoConfigName string    `json:"ssoConfigName,omitempty"`
	AccountID     string    `json:"accountId,omitempty"`
	Arn           string    `json:"arn,omitempty"`
	Expiration    time.Time `json:"expiration,omitzero"`
}

// Login progress stages pushed to the notification sink while a device
// authorization is running.
const (
	StageRegistering = "registering"
	StageAuthorizing = "authorizing"
	StagePolling     = "polling"
	StageComplete    = "complete"
	StageError       = "error"
)

// LoginProgress is one step of an SSO login, pushed to the UI sink.
type LoginProgress struct {
	Stage           string `json:"stage"`
	VerificationURI string `json:"verificationUri,omitempty"`
	UserCode        string `json:"userCode,omitempty"`
	Message         string `json:"message,omitempty"`
}

// ProgressSink receives login progress events. A nil-safe no-op sink is
// available via discardProgress.
type ProgressSink func(LoginProgress)

func discardProgress(LoginProgress) {}
