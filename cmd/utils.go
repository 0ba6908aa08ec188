package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/chukul/chatctl/internal"
	"github.com/chukul/chatctl/internal/ui"
)

// establishConnection resolves credentials for this process, preferring a
// saved SSO configuration, then a named profile, then an interactive picker.
// Login progress (device codes, verification URLs) is printed as it arrives.
func establishConnection(app *internal.App, profile, region, config string) error {
	ch, cancel := app.Notifier.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for note := range ch {
			if note.Login != nil {
				printLoginProgress(*note.Login)
			}
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	ctx := context.Background()
	switch {
	case config != "":
		cfg, err := findSsoConfig(app, config)
		if err != nil {
			return err
		}
		return app.ConnectWithSsoConfig(ctx, cfg.ID)
	case profile != "":
		return app.ConnectWithProfile(ctx, profile, region)
	default:
		return connectInteractive(app, region)
	}
}

func connectInteractive(app *internal.App, region string) error {
	configs, err := app.Store.ListSsoConfigs()
	if err != nil {
		return err
	}
	profiles, err := app.ListProfiles()
	if err != nil && len(configs) == 0 {
		return err
	}

	var labels []string
	for _, c := range configs {
		label := c.Name
		if c.AccountName != "" && c.RoleName != "" {
			label = fmt.Sprintf("%s (%s / %s)", c.Name, c.AccountName, c.RoleName)
		}
		labels = append(labels, "🔐 "+label)
	}
	for _, p := range profiles {
		label := p.Name
		if p.IsSso {
			label += " (sso)"
		}
		labels = append(labels, "📦 profile: "+label)
	}
	if len(labels) == 0 {
		return fmt.Errorf("no SSO configurations or AWS profiles found; run 'chatctl sso setup' first")
	}

	idx, err := ui.Select("Connect with", labels)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if idx < len(configs) {
		return app.ConnectWithSsoConfig(ctx, configs[idx].ID)
	}
	return app.ConnectWithProfile(ctx, profiles[idx-len(configs)].Name, region)
}

// findSsoConfig resolves a configuration by id first, then by name
// (case-insensitive).
func findSsoConfig(app *internal.App, idOrName string) (*internal.SsoConfiguration, error) {
	if cfg, err := app.Store.SsoConfig(idOrName); err == nil {
		return cfg, nil
	}
	configs, err := app.Store.ListSsoConfigs()
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if strings.EqualFold(configs[i].Name, idOrName) {
			return &configs[i], nil
		}
	}
	return nil, fmt.Errorf("SSO configuration '%s' not found (see 'chatctl sso list')", idOrName)
}

func printLoginProgress(p internal.LoginProgress) {
	switch p.Stage {
	case internal.StageRegistering:
		fmt.Println("🔐 Registering device client...")
	case internal.StagePolling:
		fmt.Println("\n🌐 Open this URL in your browser to approve the sign-in:")
		fmt.Printf("   %s\n", p.VerificationURI)
		fmt.Printf("   Code: %s\n\n", p.UserCode)
		fmt.Println("⏳ Waiting for approval...")
	case internal.StageComplete:
		fmt.Println("✅ Device authorization complete")
	case internal.StageError:
		fmt.Printf("❌ %s\n", p.Message)
	}
}

func truncateText(text string, max int) string {
	if len(text) > max {
		return text[:max-3] + "..."
	}
	return text
}
