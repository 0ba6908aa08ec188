package cmd

import (
	"fmt"
	"log"

	"github.com/chukul/chatctl/internal"
	"github.com/spf13/cobra"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Show or set the Bedrock model",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		override, _ := app.Store.Setting(internal.SettingModelID)
		if override != "" {
			fmt.Printf("🤖 %s (from settings)\n", override)
			fmt.Println("\n💡 Back to the region default: chatctl model reset")
			return
		}
		fmt.Printf("🤖 %s (region default)\n", app.Gateway.ResolveModelID())
		fmt.Println("\n💡 Pin a model: chatctl model set <model-id>")
	},
}

var modelSetCmd = &cobra.Command{
	Use:   "set <model-id>",
	Short: "Pin a model id for all future chats",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		if err := app.Store.SetSetting(internal.SettingModelID, args[0]); err != nil {
			log.Fatalf("Failed to save model id: %v", err)
		}
		fmt.Printf("✅ Model set to %s\n", args[0])
	},
}

var modelResetCmd = &cobra.Command{
	Use:     "reset",
	Aliases: []string{"clear"},
	Short:   "Clear the pinned model and use the region default",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		if err := app.Store.SetSetting(internal.SettingModelID, ""); err != nil {
			log.Fatalf("Failed to clear model id: %v", err)
		}
		fmt.Println("✅ Model reset to the region default")
	},
}

func init() {
	modelCmd.AddCommand(modelSetCmd)
	modelCmd.AddCommand(modelResetCmd)
	rootCmd.AddCommand(modelCmd)
}
