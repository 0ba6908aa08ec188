package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/chukul/chatctl/internal"
	"github.com/chukul/chatctl/internal/ui"
	"github.com/spf13/cobra"
)

var ssoCmd = &cobra.Command{
	Use:   "sso",
	Short: "Manage SSO configurations",
	Long:  `Set up, list, and delete the IAM Identity Center configurations chatctl connects through.`,
}

var ssoSetupCmd = &cobra.Command{
	Use:     "setup",
	Aliases: []string{"add"},
	Short:   "Interactive wizard: device sign-in, then account and role discovery",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		if err := runSsoSetup(app); err != nil {
			fmt.Printf("❌ Setup failed: %s\n", internal.NormalizeError(err))
			os.Exit(1)
		}
	},
}

func runSsoSetup(app *internal.App) error {
	startURL, err := ui.GetInput("SSO Start URL", "https://my-org.awsapps.com/start", false)
	if err != nil {
		return err
	}
	startURL = strings.TrimSpace(startURL)
	if startURL == "" {
		return fmt.Errorf("start URL is required")
	}

	ssoRegion, err := ui.GetInput("SSO Region", "us-east-1", false)
	if err != nil {
		return err
	}
	ssoRegion = strings.TrimSpace(ssoRegion)
	if ssoRegion == "" {
		ssoRegion = "us-east-1"
	}

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
	ctx := context.Background()
	err = app.StartDeviceAuth(ctx, startURL, ssoRegion)
	cancel()
	<-done
	if err != nil {
		return err
	}

	accountsAny, err := ui.Spin("Discovering accounts...", func() (any, error) {
		return app.DiscoverAccounts(ctx)
	})
	if err != nil {
		return err
	}
	accounts := accountsAny.([]internal.Account)
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts available through %s", startURL)
	}

	accountLabels := make([]string, 0, len(accounts))
	for _, a := range accounts {
		label := fmt.Sprintf("%s (%s)", a.AccountName, a.AccountID)
		if a.EmailAddress != "" {
			label += " — " + a.EmailAddress
		}
		accountLabels = append(accountLabels, label)
	}
	accountIdx, err := ui.Select("Select an account", accountLabels)
	if err != nil {
		return err
	}
	account := accounts[accountIdx]

	rolesAny, err := ui.Spin("Discovering roles...", func() (any, error) {
		return app.DiscoverRoles(ctx, account.AccountID)
	})
	if err != nil {
		return err
	}
	roles := rolesAny.([]internal.Role)
	if len(roles) == 0 {
		return fmt.Errorf("no roles available in account %s", account.AccountID)
	}

	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, r.RoleName)
	}
	roleIdx, err := ui.Select("Select a role", roleNames)
	if err != nil {
		return err
	}
	role := roles[roleIdx]

	defaultName := fmt.Sprintf("%s %s", account.AccountName, role.RoleName)
	name, err := ui.GetInput("Configuration name", defaultName, false)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName
	}

	bedrockRegion, err := ui.GetInput("Bedrock region", ssoRegion, false)
	if err != nil {
		return err
	}
	bedrockRegion = strings.TrimSpace(bedrockRegion)
	if bedrockRegion == "" {
		bedrockRegion = ssoRegion
	}

	cfg := &internal.SsoConfiguration{
		Name:          name,
		SsoStartURL:   startURL,
		SsoRegion:     ssoRegion,
		AccountID:     account.AccountID,
		AccountName:   account.AccountName,
		RoleName:      role.RoleName,
		BedrockRegion: bedrockRegion,
	}
	if err := app.SaveSsoConfig(cfg); err != nil {
		return err
	}

	fmt.Printf("✅ Saved SSO configuration '%s'\n", cfg.Name)
	fmt.Println("\n💡 Start chatting:")
	fmt.Printf("   chatctl chat --config %q\n", cfg.Name)
	return nil
}

var ssoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved SSO configurations",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		configs, err := app.Store.ListSsoConfigs()
		if err != nil {
			log.Fatalf("Failed to list SSO configurations: %v", err)
		}
		if len(configs) == 0 {
			fmt.Println("No saved SSO configurations. Run 'chatctl sso setup' to add one.")
			return
		}
		for _, c := range configs {
			fmt.Printf("🔐 %s\n", c.Name)
			fmt.Printf("   Account: %s (%s)  Role: %s\n", c.AccountName, c.AccountID, c.RoleName)
			fmt.Printf("   Start URL: %s  Bedrock region: %s\n", c.SsoStartURL, c.BedrockRegion)
			fmt.Printf("   ID: %s\n", c.ID)
		}
	},
}

var ssoDeleteCmd = &cobra.Command{
	Use:     "delete [id-or-name]",
	Aliases: []string{"remove", "rm"},
	Short:   "Delete a saved SSO configuration",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()

		var cfg *internal.SsoConfiguration
		if len(args) > 0 {
			found, err := findSsoConfig(app, args[0])
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				return
			}
			cfg = found
		} else {
			configs, err := app.Store.ListSsoConfigs()
			if err != nil || len(configs) == 0 {
				fmt.Println("❌ No saved SSO configurations found.")
				return
			}
			labels := make([]string, 0, len(configs))
			for _, c := range configs {
				labels = append(labels, fmt.Sprintf("%s (%s / %s)", c.Name, c.AccountName, c.RoleName))
			}
			idx, err := ui.Select("Select configuration to delete", labels)
			if err != nil {
				return
			}
			cfg = &configs[idx]
		}

		fmt.Printf("⚠️  This will delete '%s'. Type 'yes' to confirm: ", cfg.Name)
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		if strings.TrimSpace(input) != "yes" {
			fmt.Println("❌ Operation cancelled.")
			return
		}

		if err := app.DeleteSsoConfig(cfg.ID); err != nil {
			log.Fatalf("Failed to delete configuration: %v", err)
		}
		fmt.Printf("✅ Configuration '%s' deleted.\n", cfg.Name)
	},
}

func init() {
	ssoCmd.AddCommand(ssoSetupCmd)
	ssoCmd.AddCommand(ssoListCmd)
	ssoCmd.AddCommand(ssoDeleteCmd)
	rootCmd.AddCommand(ssoCmd)
}
