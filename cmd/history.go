package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse saved conversations",
	Run: func(cmd *cobra.Command, args []string) {
		listConversations()
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	Run: func(cmd *cobra.Command, args []string) {
		listConversations()
	},
}

func listConversations() {
	app := newApp()
	metas, err := app.Store.ListConversations()
	if err != nil {
		log.Fatalf("Failed to list conversations: %v", err)
	}
	if len(metas) == 0 {
		fmt.Println("No saved conversations yet. Start one with 'chatctl chat'.")
		return
	}

	header := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%-40s %-9s %-17s %-36s\n",
		header("TITLE"), header("MESSAGES"), header("UPDATED"), header("ID"))
	fmt.Println(strings.Repeat("-", 105))
	for _, m := range metas {
		title := m.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%-40s %-9d %-17s %-36s\n",
			truncateText(title, 38),
			m.MessageCount,
			m.UpdatedAt.Format("2006-01-02 15:04"),
			m.ID,
		)
		if m.Preview != "" {
			fmt.Printf("  %s\n", color.New(color.Faint).Sprint(truncateText(m.Preview, 100)))
		}
	}
	fmt.Println("\n💡 Resume one: chatctl chat --conversation <id>")
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		conv, err := app.Store.Conversation(args[0])
		if err != nil {
			log.Fatalf("Failed to load conversation: %v", err)
		}
		title := conv.Title
		if title == "" {
			title = conv.ID
		}
		fmt.Printf("📜 %s  (%d messages)\n", title, len(conv.Messages))
		for _, m := range conv.Messages {
			renderMessage(m)
		}
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		conv, err := app.Store.Conversation(args[0])
		if err != nil {
			log.Fatalf("Failed to load conversation: %v", err)
		}

		title := conv.Title
		if title == "" {
			title = conv.ID
		}
		fmt.Printf("⚠️  This will delete '%s'. Type 'yes' to confirm: ", title)
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		if strings.TrimSpace(input) != "yes" {
			fmt.Println("❌ Operation cancelled.")
			return
		}

		if err := app.Store.DeleteConversation(conv.ID); err != nil {
			log.Fatalf("Failed to delete conversation: %v", err)
		}
		fmt.Println("✅ Conversation deleted.")
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}
