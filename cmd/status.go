package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chukul/chatctl/internal"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection status, model, and saved SSO configurations",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()

		status, err := app.ConnectionStatus()
		if err != nil {
			log.Fatalf("Failed to read status: %v", err)
		}

		if statusJSON {
			jsonData, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(jsonData))
			return
		}

		renderStatus(status)

		fmt.Printf("\n🤖 Model: %s", app.Gateway.ResolveModelID())
		if override, _ := app.Store.Setting(internal.SettingModelID); override != "" {
			fmt.Print(" (from settings)")
		} else {
			fmt.Print(" (region default)")
		}
		fmt.Println()

		configs, err := app.Store.ListSsoConfigs()
		if err != nil {
			log.Fatalf("Failed to list SSO configurations: %v", err)
		}
		if len(configs) == 0 {
			fmt.Println("\nNo saved SSO configurations. Run 'chatctl sso setup' to add one.")
			return
		}

		header := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%-25s %-20s %-20s %-12s %-20s\n",
			header("NAME"), header("ACCOUNT"), header("ROLE"), header("REGION"), header("UPDATED"))
		fmt.Println(strings.Repeat("-", 100))
		for _, c := range configs {
			account := c.AccountName
			if account == "" {
				account = c.AccountID
			}
			fmt.Printf("%-25s %-20s %-20s %-12s %-20s\n",
				truncateText(c.Name, 23),
				truncateText(account, 18),
				truncateText(c.RoleName, 18),
				c.BedrockRegion,
				c.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
	},
}

// renderStatus prints the connection snapshot in human form.
func renderStatus(status internal.ConnectionStatus) {
	if !status.Connected {
		fmt.Println("❌ Not connected")
		fmt.Println("\n💡 Each chatctl process signs in for itself:")
		fmt.Println("   chatctl connect            # verify the sign-in path")
		fmt.Println("   chatctl chat               # connect and start chatting")
		return
	}

	fmt.Println("✅ Connected")
	if status.SsoConfigName != "" {
		fmt.Printf("   Config:  %s\n", status.SsoConfigName)
	}
	if status.ProfileLabel != "" {
		fmt.Printf("   Profile: %s\n", status.ProfileLabel)
	}
	if status.AccountID != "" {
		fmt.Printf("   Account: %s\n", status.AccountID)
	}
	if status.Arn != "" {
		fmt.Printf("   ARN:     %s\n", status.Arn)
	}
	fmt.Printf("   Region:  %s\n", status.Region)
	if !status.Expiration.IsZero() {
		fmt.Printf("   Expires: %s (%s)\n",
			internal.FormatLocal(status.Expiration),
			internal.FormatRemaining(status.Expiration, time.Now()))
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output results in JSON format for automation")
	rootCmd.AddCommand(statusCmd)
}
