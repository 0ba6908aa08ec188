package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/chukul/chatctl/internal"
	"github.com/spf13/cobra"
)

func printLogo() {
	// Gradient colors (Blue -> Purple -> Pink)
	// Blue: 0, 176, 255
	// Purple: 170, 0, 255
	// Pink: 255, 0, 128

	ascii := []string{
		`   ██████╗██╗  ██╗ █████╗ ████████╗ ██████╗████████╗██╗     `,
		`  ██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔════╝╚══██╔══╝██║     `,
		`  ██║     ███████║███████║   ██║   ██║        ██║   ██║     `,
		`  ██║     ██╔══██║██╔══██║   ██║   ██║        ██║   ██║     `,
		`  ╚██████╗██║  ██║██║  ██║   ██║   ╚██████╗   ██║   ███████╗`,
		`   ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝    ╚═════╝   ╚═╝   ╚══════╝`,
	}

	fmt.Println()
	for _, line := range ascii {
		for i, char := range line {
			// Calculate gradient ratio (0.0 to 1.0)
			ratio := float64(i) / float64(len(line))

			var r, g, b int
			if ratio < 0.5 {
				// Blue to Purple
				subRatio := ratio * 2
				r = int(0*(1-subRatio) + 170*subRatio)
				g = int(176*(1-subRatio) + 0*subRatio)
				b = int(255*(1-subRatio) + 255*subRatio)
			} else {
				// Purple to Pink
				subRatio := (ratio - 0.5) * 2
				r = int(170*(1-subRatio) + 255*subRatio)
				g = int(0*(1-subRatio) + 0*subRatio)
				b = int(255*(1-subRatio) + 128*subRatio)
			}

			fmt.Printf("\x1b[38;2;%d;%d;%dm%c\x1b[0m", r, g, b, char)
		}
		fmt.Println()
	}
	fmt.Println("\x1b[1m  A terminal chat client for Amazon Bedrock with SSO sign-in & streaming tool use\x1b[0m")
	fmt.Println("  Author: Chuchai Kultanahiran <chuchaik@outlook.com>")
	fmt.Println()
}

var rootSecret string

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "chatctl is a CLI chat client for Amazon Bedrock",
	Long:  `ChatCtl signs in to AWS through IAM Identity Center, streams Claude responses from Amazon Bedrock, and keeps your conversation history encrypted on disk.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Check for updates on every command (non-blocking)
		internal.CheckForUpdates()
	},
}

// newApp builds the component graph for this process. The conversation
// secret comes from --secret, CHATCTL_SECRET, or the keychain; without one
// the store falls back to plaintext files.
func newApp() *internal.App {
	dir, err := internal.DefaultDataDir()
	if err != nil {
		log.Fatalf("Failed to locate data directory: %v", err)
	}
	secret, _ := internal.GetSecret(rootSecret)
	return internal.NewApp(internal.NewFileStore(dir, secret))
}

// Execute runs the CLI
func Execute() {
	if len(os.Args) <= 1 || (len(os.Args) > 1 && os.Args[1] == "help") {
		printLogo()
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootSecret, "secret", "", "Conversation encryption secret (or set CHATCTL_SECRET / keychain)")
}
