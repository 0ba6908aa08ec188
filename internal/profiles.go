package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-ini/ini"
)

func awsConfigPath() (string, error) {
	if path := os.Getenv("AWS_CONFIG_FILE"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".aws", "config"), nil
}

// ListProfiles enumerates the shared AWS config file. Both the legacy inline
// sso_start_url style and the modern sso-session indirection mark a profile
// as SSO-backed. A missing config file is an empty list, not an error.
func ListProfiles() ([]AwsProfile, error) {
	path, err := awsConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []AwsProfile{}, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// sso-session sections are referenced by name from profiles
	sessions := map[string]*ini.Section{}
	for _, section := range file.Sections() {
		if name, ok := strings.CutPrefix(section.Name(), "sso-session "); ok {
			sessions[name] = section
		}
	}

	var profiles []AwsProfile
	for _, section := range file.Sections() {
		name := section.Name()
		switch {
		case name == "default":
		case strings.HasPrefix(name, "profile "):
			name = strings.TrimPrefix(name, "profile ")
		default:
			continue
		}

		profile := AwsProfile{
			Name:        name,
			Region:      section.Key("region").String(),
			SsoStartURL: section.Key("sso_start_url").String(),
			SsoSession:  section.Key("sso_session").String(),
		}
		if profile.SsoSession != "" {
			if session, ok := sessions[profile.SsoSession]; ok && profile.SsoStartURL == "" {
				profile.SsoStartURL = session.Key("sso_start_url").String()
			}
		}
		profile.IsSso = profile.SsoStartURL != "" || profile.SsoSession != ""
		profiles = append(profiles, profile)
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// ProfileSsoDetails is the authoritative SSO identity of one profile, read
// through the SDK's shared-config loader rather than our own ini pass.
type ProfileSsoDetails struct {
	StartURL    string
	Region      string
	SessionName string
}

// ProfileSso resolves the SSO session behind profileName. ok is false when
// the profile exists but is not SSO-backed.
func ProfileSso(ctx context.Context, profileName string) (ProfileSsoDetails, bool, error) {
	var optFns []func(*config.LoadSharedConfigOptions)
	if path := os.Getenv("AWS_CONFIG_FILE"); path != "" {
		optFns = append(optFns, func(o *config.LoadSharedConfigOptions) {
			o.ConfigFiles = []string{path}
		})
	}
	shared, err := config.LoadSharedConfigProfile(ctx, profileName, optFns...)
	if err != nil {
		return ProfileSsoDetails{}, false, fmt.Errorf("failed to load profile %s: %w", profileName, err)
	}
	if shared.SSOSession != nil {
		return ProfileSsoDetails{
			StartURL:    shared.SSOSession.SSOStartURL,
			Region:      shared.SSOSession.SSORegion,
			SessionName: shared.SSOSession.Name,
		}, true, nil
	}
	if shared.SSOStartURL != "" {
		return ProfileSsoDetails{
			StartURL: shared.SSOStartURL,
			Region:   shared.SSORegion,
		}, true, nil
	}
	return ProfileSsoDetails{}, false, nil
}
