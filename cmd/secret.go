package cmd

import (
	"fmt"
	"strings"

	"github.com/chukul/chatctl/internal"
	"github.com/chukul/chatctl/internal/ui"
	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the conversation encryption secret",
	Long:  `Manage the secret used to encrypt conversation history at rest. Without a secret, conversations are stored as plaintext JSON.`,
}

var secretSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate a new secret and store it in the keychain",
	Run: func(cmd *cobra.Command, args []string) {
		if !internal.IsMacOS() {
			fmt.Println("❌ Keychain integration is only available on macOS")
			fmt.Println("\n💡 Set CHATCTL_SECRET in your shell instead:")
			fmt.Println("   export CHATCTL_SECRET=\"your-32-char-encryption-key\"")
			return
		}

		secret, err := internal.SetupKeychain()
		if err != nil {
			fmt.Printf("❌ Failed to set up keychain: %v\n", err)
			return
		}

		fmt.Println("✅ New secret generated and stored in your Keychain.")
		fmt.Println("\n🔐 Your ChatCtl Encryption Secret:")
		fmt.Println(strings.Repeat("─", 64))
		fmt.Println(secret)
		fmt.Println(strings.Repeat("─", 64))
		fmt.Println("\n⚠️  KEEP THIS SAFE! You will need it to read your history on another machine.")
		fmt.Println("   To restore: chatctl secret import <key>")
	},
}

var secretShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current keychain secret",
	Long:  "Reveal the secret stored in your macOS Keychain. Usage of this command requires Touch ID authentication.",
	Run: func(cmd *cobra.Command, args []string) {
		if !internal.IsMacOS() {
			fmt.Println("❌ Keychain integration is only available on macOS")
			return
		}

		// Re-authentication implicitly handled by System Keychain access control
		// When we request the item, OS will prompt user
		secret, err := internal.GetSecret("")
		if err != nil {
			fmt.Println("❌ No secret found in Keychain or it couldn't be accessed.")
			return
		}

		fmt.Println("🔐 Your ChatCtl Encryption Secret:")
		fmt.Println(strings.Repeat("─", 64))
		fmt.Println(secret)
		fmt.Println(strings.Repeat("─", 64))
		fmt.Println("\n⚠️  KEEP THIS SAFE! You will need it to read your history on another machine.")
		fmt.Println("   To restore: chatctl secret import <key>")
	},
}

var secretImportCmd = &cobra.Command{
	Use:   "import [key]",
	Short: "Import a secret into keychain",
	Long:  "Save an existing secret key into your macOS Keychain for passwordless operation.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !internal.IsMacOS() {
			fmt.Println("❌ Keychain integration is only available on macOS")
			return
		}

		var key string
		if len(args) > 0 {
			key = args[0]
		} else {
			var err error
			key, err = ui.GetInput("Enter Secret Key to Import", "", true)
			if err != nil {
				return
			}
		}

		if key == "" {
			fmt.Println("❌ Secret key cannot be empty")
			return
		}

		if err := internal.StoreKeychainSecret(key); err != nil {
			fmt.Printf("❌ Failed to store secret: %v\n", err)
			return
		}

		fmt.Println("✅ Secret imported successfully to Keychain!")
	},
}

func init() {
	secretCmd.AddCommand(secretSetupCmd)
	secretCmd.AddCommand(secretShowCmd)
	secretCmd.AddCommand(secretImportCmd)
	rootCmd.AddCommand(secretCmd)
}
