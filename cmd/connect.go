package cmd

import (
	"fmt"
	"os"

	"github.com/chukul/chatctl/internal"
	"github.com/spf13/cobra"
)

var (
	connectProfile string
	connectRegion  string
	connectConfig  string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Verify that credentials resolve and report the session identity",
	Long: `Resolve credentials through an AWS profile or a saved SSO configuration
and verify them against STS. Credentials live in process memory only, so
'chatctl chat' establishes its own connection with the same flags; this
command is the dry run that proves the sign-in path works.`,
	Example: `  # Through a saved SSO configuration (id or name)
  chatctl connect --config "Acme Dev"

  # Through a shared-config profile
  chatctl connect --profile prod-admin --region us-west-2

  # Interactive picker
  chatctl connect`,
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		if err := establishConnection(app, connectProfile, connectRegion, connectConfig); err != nil {
			fmt.Printf("❌ Connection failed: %s\n", internal.NormalizeError(err))
			os.Exit(1)
		}
		status, _ := app.ConnectionStatus()
		renderStatus(status)
		fmt.Println("\n💡 Start chatting:")
		fmt.Println("   chatctl chat")
	},
}

func init() {
	connectCmd.Flags().StringVar(&connectProfile, "profile", "", "AWS shared-config profile name")
	connectCmd.Flags().StringVar(&connectRegion, "region", "", "Region override for the profile connection")
	connectCmd.Flags().StringVar(&connectConfig, "config", "", "Saved SSO configuration (id or name)")
	rootCmd.AddCommand(connectCmd)
}
