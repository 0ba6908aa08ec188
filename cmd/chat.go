package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chukul/chatctl/internal"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatProfile      string
	chatRegion       string
	chatConfig       string
	chatMessage      string
	chatConversation string
	chatSystem       string
	chatImages       []string
	chatDocs         []string
	chatVerbose      bool
)

var (
	youStyle       = color.New(color.FgCyan, color.Bold)
	assistantStyle = color.New(color.FgMagenta, color.Bold)
	dimStyle       = color.New(color.Faint)
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with Claude on Amazon Bedrock",
	Long: `Connect and start a streaming chat session. Without --message an
interactive session opens; with --message (or piped stdin) a single turn is
sent and the answer streamed to stdout.`,
	Example: `  # Interactive session through a saved SSO configuration
  chatctl chat --config "Acme Dev"

  # One-shot question through a profile
  chatctl chat --profile prod-admin --message "Summarize this log" --doc app.log

  # Piped input
  git diff | chatctl chat --config "Acme Dev"`,
	Run: func(cmd *cobra.Command, args []string) {
		app := newApp()
		if err := establishConnection(app, chatProfile, chatRegion, chatConfig); err != nil {
			fmt.Printf("❌ Connection failed: %s\n", internal.NormalizeError(err))
			os.Exit(1)
		}

		images := make([]internal.ImageBlock, 0, len(chatImages))
		for _, path := range chatImages {
			block, err := loadImageBlock(path)
			if err != nil {
				log.Fatalf("Failed to attach image: %v", err)
			}
			images = append(images, block)
		}
		docs := make([]internal.DocumentBlock, 0, len(chatDocs))
		for _, path := range chatDocs {
			block, err := loadDocumentBlock(path)
			if err != nil {
				log.Fatalf("Failed to attach document: %v", err)
			}
			docs = append(docs, block)
		}

		convID := chatConversation
		if convID != "" {
			conv, err := app.Store.Conversation(convID)
			if err != nil {
				log.Fatalf("Failed to load conversation: %v", err)
			}
			renderTranscript(conv)
		}

		ch, cancel := app.Notifier.Subscribe()
		defer cancel()

		message := chatMessage
		if message == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
			data, _ := io.ReadAll(os.Stdin)
			message = strings.TrimSpace(string(data))
			if message == "" {
				fmt.Println("❌ No message on stdin")
				os.Exit(1)
			}
		}

		if message != "" {
			res, err := app.SendMessage(internal.SendParams{
				ConversationID: convID,
				Text:           message,
				System:         chatSystem,
				Images:         images,
				Documents:      docs,
			})
			if err != nil {
				fmt.Printf("❌ %s\n", internal.NormalizeError(err))
				os.Exit(1)
			}
			streamTurn(app, ch, res.RequestID)
			return
		}

		fmt.Println("\n💬 Connected. Type a message, /help for commands, /quit to leave.")
		reader := bufio.NewReader(os.Stdin)
		for {
			youStyle.Print("\nYou ❯ ")
			line, err := reader.ReadString('\n')
			if err != nil {
				fmt.Println()
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := handleChatCommand(app, line, &convID); quit {
					return
				}
				continue
			}

			params := internal.SendParams{
				ConversationID: convID,
				Text:           line,
				System:         chatSystem,
				Images:         images,
				Documents:      docs,
			}
			// Attachments ride the first turn only.
			images, docs = nil, nil

			drainNotifications(ch)
			res, err := app.SendMessage(params)
			if err != nil {
				printSendError(err)
				continue
			}
			convID = res.ConversationID
			assistantStyle.Print("\n🤖 ")
			streamTurn(app, ch, res.RequestID)
		}
	},
}

// streamTurn renders one logical model turn: the initial stream plus any
// tool rounds the orchestrator chains onto it. Ctrl+C aborts the live
// stream; nothing further arrives for an aborted request.
func streamTurn(app *internal.App, ch <-chan internal.Notification, requestID string) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	current := requestID
	awaitingRound := false
	for {
		select {
		case <-interrupt:
			if ok, err := app.AbortStream(current); err != nil {
				fmt.Printf("\n❌ %s\n", internal.NormalizeError(err))
			} else if ok {
				fmt.Println("\n⏹  Stopped.")
			}
			return

		case <-time.After(5 * time.Minute):
			fmt.Println("\n❌ Timed out waiting for the stream.")
			return

		case note, ok := <-ch:
			if !ok {
				return
			}
			if note.SessionExpired {
				fmt.Println("\n⚠️  Session expired — credentials cleared. Restart chat to sign in again.")
				return
			}
			if note.Stream == nil {
				continue
			}
			switch e := note.Stream.(type) {
			case internal.MessageStartEvent:
				// A tool round re-invokes under a fresh request id.
				if awaitingRound {
					current = e.RequestID()
					awaitingRound = false
				}
			case internal.ContentBlockStartEvent:
				if e.RequestID() == current && e.ToolName != "" {
					fmt.Printf("\n\n🔧 Using tool: %s\n", e.ToolName)
				}
			case internal.ContentBlockDeltaEvent:
				if e.RequestID() == current && !e.IsTool {
					fmt.Print(e.Text)
				}
			case internal.MessageStopEvent:
				if e.RequestID() != current {
					continue
				}
				if e.StopReason == internal.StopToolUse {
					awaitingRound = true
					continue
				}
				fmt.Println()
				if chatVerbose {
					awaitMetadata(ch, current)
				}
				return
			case internal.MetadataEvent:
				if chatVerbose && e.RequestID() == current {
					printUsage(e)
				}
			case internal.ErrorEvent:
				if e.RequestID() == current {
					fmt.Printf("\n❌ %s\n", e.Message)
					return
				}
			}
		}
	}
}

// awaitMetadata waits briefly for the usage frame that trails messageStop.
func awaitMetadata(ch <-chan internal.Notification, requestID string) {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			return
		case note, ok := <-ch:
			if !ok {
				return
			}
			if e, isMeta := note.Stream.(internal.MetadataEvent); isMeta && e.RequestID() == requestID {
				printUsage(e)
				return
			}
		}
	}
}

func printUsage(e internal.MetadataEvent) {
	dimStyle.Printf("📊 tokens: %d in / %d out, %dms\n", e.Usage.InputTokens, e.Usage.OutputTokens, e.LatencyMs)
}

func handleChatCommand(app *internal.App, line string, convID *string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true
	case "/new":
		conv, err := app.StartConversation()
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			return false
		}
		*convID = conv.ID
		fmt.Println("✨ Started a new conversation.")
	case "/tools":
		for _, spec := range app.Registry.Specs() {
			fmt.Printf("🔧 %s — %s\n", spec.Name, spec.Description)
		}
	case "/help":
		fmt.Println("Commands: /new  /tools  /help  /quit   (Ctrl+C stops a streaming answer)")
	default:
		fmt.Println("Unknown command. Try /help.")
	}
	return false
}

// drainNotifications flushes anything buffered from a previous turn so a
// stale event cannot bleed into the next render.
func drainNotifications(ch <-chan internal.Notification) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func printSendError(err error) {
	if internal.IsRateLimited(err) {
		fmt.Printf("⏳ %s\n", internal.NormalizeError(err))
		return
	}
	fmt.Printf("❌ %s\n", internal.NormalizeError(err))
}

// renderTranscript replays the tail of a resumed conversation.
func renderTranscript(conv *internal.Conversation) {
	title := conv.Title
	if title == "" {
		title = conv.ID
	}
	fmt.Printf("📜 %s\n", title)
	msgs := conv.Messages
	if len(msgs) > 10 {
		dimStyle.Printf("   … %d earlier messages\n", len(msgs)-10)
		msgs = msgs[len(msgs)-10:]
	}
	for _, m := range msgs {
		renderMessage(m)
	}
}

func renderMessage(m *internal.ChatMessage) {
	if m.ToolCarrier {
		return
	}
	switch m.Role {
	case internal.RoleUser:
		youStyle.Print("\nYou ❯ ")
		fmt.Println(m.Text())
	case internal.RoleAssistant:
		assistantStyle.Print("\n🤖 ")
		fmt.Println(m.Text())
		for _, use := range m.ToolUses() {
			dimStyle.Printf("   🔧 %s\n", use.Name)
		}
	}
}

func loadImageBlock(path string) (internal.ImageBlock, error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "jpg" {
		format = "jpeg"
	}
	switch format {
	case "png", "jpeg", "gif", "webp":
	default:
		return internal.ImageBlock{}, fmt.Errorf("unsupported image format %q (png, jpeg, gif, webp)", format)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return internal.ImageBlock{}, err
	}
	return internal.ImageBlock{Format: format, Name: filepath.Base(path), Bytes: data}, nil
}

func loadDocumentBlock(path string) (internal.DocumentBlock, error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch format {
	case "pdf", "csv", "doc", "docx", "xls", "xlsx", "html", "txt", "md":
	default:
		return internal.DocumentBlock{}, fmt.Errorf("unsupported document format %q", format)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return internal.DocumentBlock{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return internal.DocumentBlock{Format: format, Name: name, Bytes: data}, nil
}

func init() {
	chatCmd.Flags().StringVar(&chatProfile, "profile", "", "AWS shared-config profile name")
	chatCmd.Flags().StringVar(&chatRegion, "region", "", "Region override for the profile connection")
	chatCmd.Flags().StringVar(&chatConfig, "config", "", "Saved SSO configuration (id or name)")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "Resume a conversation by id")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "System prompt override for this session")
	chatCmd.Flags().StringArrayVar(&chatImages, "img", nil, "Attach an image file (repeatable)")
	chatCmd.Flags().StringArrayVar(&chatDocs, "doc", nil, "Attach a document file (repeatable)")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "Print token usage after each answer")
	rootCmd.AddCommand(chatCmd)
}
