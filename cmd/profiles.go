package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(profilesCmd)
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List profiles from the shared AWS config file",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		profiles, err := app.ListProfiles()
		if err != nil {
			log.Fatalf("Failed to list profiles: %v", err)
		}
		if len(profiles) == 0 {
			fmt.Println("No profiles found in ~/.aws/config.")
			return
		}
		for _, p := range profiles {
			line := "📦 " + p.Name
			if p.Region != "" {
				line += fmt.Sprintf(" (%s)", p.Region)
			}
			if p.IsSso {
				line += " [SSO]"
			}
			fmt.Println(line)
		}
	},
}
