package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var toolsInput string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the model can call",
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		specs := app.Registry.Specs()
		if len(specs) == 0 {
			fmt.Println("No tools registered.")
			return
		}
		for _, spec := range specs {
			fmt.Printf("🔧 %s — %s\n", spec.Name, spec.Description)
			if schema, err := json.Marshal(spec.InputSchema); err == nil {
				fmt.Printf("   input: %s\n", string(schema))
			}
		}
	},
}

var toolsRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Execute a tool directly with JSON input",
	Example: `  chatctl tools run current_time
  chatctl tools run read_file --input '{"path": "/tmp/notes.txt"}'`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		input := map[string]any{}
		if toolsInput != "" {
			if err := json.Unmarshal([]byte(toolsInput), &input); err != nil {
				log.Fatalf("Invalid --input JSON: %v", err)
			}
		}

		app := newApp()
		result, err := app.ExecuteTool(args[0], input)
		if err != nil {
			log.Fatalf("Failed to execute tool: %v", err)
		}
		if result.Success {
			fmt.Println(result.Content)
			return
		}
		fmt.Printf("❌ %s\n", result.Content)
	},
}

func init() {
	toolsRunCmd.Flags().StringVar(&toolsInput, "input", "", "Tool input as a JSON object")
	toolsCmd.AddCommand(toolsRunCmd)
	rootCmd.AddCommand(toolsCmd)
}
