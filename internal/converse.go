package internal

import (
	"fmt"
	"regexp"
	"strings"
)

// Wire shapes for the Bedrock Converse streaming API. Field names follow the
// service's JSON contract exactly; everything else in the app speaks the
// ContentBlock types and crosses this boundary in buildConverseRequest.

type converseRequest struct {
	Messages        []wireMessage    `json:"messages"`
	System          []wireSystem     `json:"system,omitempty"`
	InferenceConfig *inferenceConfig `json:"inferenceConfig,omitempty"`
	ToolConfig      *toolConfig      `json:"toolConfig,omitempty"`
}

type wireSystem struct {
	Text string `json:"text"`
}

type inferenceConfig struct {
	MaxTokens int `json:"maxTokens,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Text       *string         `json:"text,omitempty"`
	Image      *wireImage      `json:"image,omitempty"`
	Document   *wireDocument   `json:"document,omitempty"`
	ToolUse    *wireToolUse    `json:"toolUse,omitempty"`
	ToolResult *wireToolResult `json:"toolResult,omitempty"`
}

type wireImage struct {
	Format string          `json:"format"`
	Source wireBytesSource `json:"source"`
}

type wireDocument struct {
	Format string          `json:"format"`
	Name   string          `json:"name"`
	Source wireBytesSource `json:"source"`
}

type wireBytesSource struct {
	Bytes []byte `json:"bytes"`
}

type wireToolUse struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

type wireToolResult struct {
	ToolUseID string            `json:"toolUseId"`
	Content   []wireToolContent `json:"content"`
	Status    string            `json:"status,omitempty"`
}

type wireToolContent struct {
	Text string `json:"text"`
}

type toolConfig struct {
	Tools []wireTool `json:"tools"`
}

type wireTool struct {
	ToolSpec wireToolSpec `json:"toolSpec"`
}

type wireToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema wireToolSchema `json:"inputSchema"`
}

type wireToolSchema struct {
	JSON map[string]any `json:"json"`
}

// Streaming response payloads, one per :event-type header value.

type messageStartPayload struct {
	Role string `json:"role"`
}

type contentBlockStartPayload struct {
	Start struct {
		ToolUse *struct {
			ToolUseID string `json:"toolUseId"`
			Name      string `json:"name"`
		} `json:"toolUse"`
	} `json:"start"`
	ContentBlockIndex int `json:"contentBlockIndex"`
}

type contentBlockDeltaPayload struct {
	Delta struct {
		Text    *string `json:"text"`
		ToolUse *struct {
			Input string `json:"input"`
		} `json:"toolUse"`
	} `json:"delta"`
	ContentBlockIndex int `json:"contentBlockIndex"`
}

type contentBlockStopPayload struct {
	ContentBlockIndex int `json:"contentBlockIndex"`
}

type messageStopPayload struct {
	StopReason string `json:"stopReason"`
}

type metadataPayload struct {
	Usage struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
		TotalTokens  int `json:"totalTokens"`
	} `json:"usage"`
	Metrics struct {
		LatencyMs int64 `json:"latencyMs"`
	} `json:"metrics"`
}

type exceptionPayload struct {
	Message string `json:"message"`
}

// buildConverseRequest translates a message history into the wire request.
// Document names are de-duplicated per request, so the namer lives here and
// nowhere else.
func buildConverseRequest(history []ChatMessage, system string, maxTokens int, tools []Tool) *converseRequest {
	req := &converseRequest{
		Messages: make([]wireMessage, 0, len(history)),
	}
	if system != "" {
		req.System = []wireSystem{{Text: system}}
	}
	if maxTokens > 0 {
		req.InferenceConfig = &inferenceConfig{MaxTokens: maxTokens}
	}
	if len(tools) > 0 {
		cfg := &toolConfig{Tools: make([]wireTool, 0, len(tools))}
		for _, tool := range tools {
			cfg.Tools = append(cfg.Tools, wireTool{ToolSpec: wireToolSpec{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: wireToolSchema{JSON: tool.InputSchema},
			}})
		}
		req.ToolConfig = cfg
	}

	namer := newDocNamer()
	for _, msg := range history {
		content := translateContent(msg.Content, namer)
		if len(content) == 0 {
			// The service rejects messages with no content.
			continue
		}
		req.Messages = append(req.Messages, wireMessage{
			Role:    msg.Role,
			Content: content,
		})
	}
	return req
}

func translateContent(blocks []ContentBlock, namer *docNamer) []wireBlock {
	out := make([]wireBlock, 0, len(blocks))
	for _, block := range blocks {
		switch b := block.(type) {
		case TextBlock:
			if b.Text == "" {
				// Blank text blocks (index padding from streaming) are not
				// valid on the wire.
				continue
			}
			text := b.Text
			out = append(out, wireBlock{Text: &text})
		case ImageBlock:
			out = append(out, wireBlock{Image: &wireImage{
				Format: b.Format,
				Source: wireBytesSource{Bytes: b.Bytes},
			}})
		case DocumentBlock:
			out = append(out, wireBlock{Document: &wireDocument{
				Format: b.Format,
				Name:   namer.unique(b.Name),
				Source: wireBytesSource{Bytes: b.Bytes},
			}})
		case ToolUseBlock:
			out = append(out, wireBlock{ToolUse: &wireToolUse{
				ToolUseID: b.ToolUseID,
				Name:      b.Name,
				Input:     b.Input,
			}})
		case ToolResultBlock:
			out = append(out, wireBlock{ToolResult: &wireToolResult{
				ToolUseID: b.ToolUseID,
				Content:   []wireToolContent{{Text: b.Content}},
				Status:    b.Status,
			}})
		}
	}
	return out
}

// The service restricts document names to alphanumerics, single spaces,
// hyphens, parentheses and square brackets.
var docNameBadChars = regexp.MustCompile(`[^0-9A-Za-z\s\-\(\)\[\]]`)
var docNameSpaces = regexp.MustCompile(`\s+`)

// sanitizeDocName makes a user-supplied file name acceptable to the service:
// the extension goes (format travels separately), disallowed characters become
// spaces, whitespace runs collapse, and an empty result gets a placeholder.
func sanitizeDocName(name string) string {
	if dot := strings.LastIndex(name, "."); dot > 0 {
		name = name[:dot]
	}
	name = docNameBadChars.ReplaceAllString(name, " ")
	name = docNameSpaces.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if name == "" {
		return "document"
	}
	return name
}

// docNamer de-duplicates sanitized document names within one request.
type docNamer struct {
	seen map[string]int
}

func newDocNamer() *docNamer {
	return &docNamer{seen: make(map[string]int)}
}

func (n *docNamer) unique(name string) string {
	clean := sanitizeDocName(name)
	n.seen[clean]++
	if count := n.seen[clean]; count > 1 {
		return fmt.Sprintf("%s (%d)", clean, count-1)
	}
	return clean
}
