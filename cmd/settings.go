package cmd

import (
	"fmt"
	"log"

	"github.com/chukul/chatctl/internal"
	"github.com/spf13/cobra"
)

// knownSettings maps each settings key to a short description for listings.
var knownSettings = []struct {
	key  string
	desc string
}{
	{internal.SettingModelID, "Pinned Bedrock model id (empty = region default)"},
	{internal.SettingSystemPrompt, "Default system prompt for chats"},
	{internal.SettingSessionDuration, "Session lifetime in minutes (default 60, 0 = no expiry)"},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change chatctl settings",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		for _, s := range knownSettings {
			value, err := app.Store.Setting(s.key)
			if err != nil {
				log.Fatalf("Failed to read settings: %v", err)
			}
			if value == "" {
				value = "(unset)"
			}
			fmt.Printf("⚙️  %-26s %s\n", s.key, value)
			fmt.Printf("    %s\n", s.desc)
		}
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		value, err := app.Store.Setting(args[0])
		if err != nil {
			log.Fatalf("Failed to read setting: %v", err)
		}
		fmt.Println(value)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting (empty value clears it)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		if !isKnownSetting(key) {
			fmt.Printf("❌ Unknown setting '%s'\n\n💡 Known settings:\n", key)
			for _, s := range knownSettings {
				fmt.Printf("   %s — %s\n", s.key, s.desc)
			}
			return
		}
		app := newApp()
		if err := app.Store.SetSetting(key, args[1]); err != nil {
			log.Fatalf("Failed to save setting: %v", err)
		}
		if args[1] == "" {
			fmt.Printf("✅ %s cleared\n", key)
			return
		}
		fmt.Printf("✅ %s = %s\n", key, args[1])
	},
}

func isKnownSetting(key string) bool {
	for _, s := range knownSettings {
		if s.key == key {
			return true
		}
	}
	return false
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
