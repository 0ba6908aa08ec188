package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message roles. Tool results ride on a user-role message per the Converse
// API contract, flagged so the UI can tell it apart from a typed turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stop reasons stamped on a finalized message.
const (
	StopEndTurn      = "end_turn"
	StopToolUse      = "tool_use"
	StopMaxTokens    = "max_tokens"
	StopStopSequence = "stop_sequence"
	StopError        = "error"
)

// ContentBlock is one typed unit of message content. Variants: TextBlock,
// ImageBlock, DocumentBlock, ToolUseBlock, ToolResultBlock.
type ContentBlock interface {
	blockType() string
}

type TextBlock struct {
	Text string `json:"text"`
}

type ImageBlock struct {
	Format string `json:"format"`
	Name   string `json:"name,omitempty"`
	Bytes  []byte `json:"bytes"`
}

type DocumentBlock struct {
	Format string `json:"format"`
	Name   string `json:"name"`
	Bytes  []byte `json:"bytes"`
}

type ToolUseBlock struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

type ToolResultBlock struct {
	ToolUseID string `json:"toolUseId"`
	Content   string `json:"content"`
	Status    string `json:"status"` // "success" | "error"
}

func (TextBlock) blockType() string       { return "text" }
func (ImageBlock) blockType() string      { return "image" }
func (DocumentBlock) blockType() string   { return "document" }
func (ToolUseBlock) blockType() string    { return "toolUse" }
func (ToolResultBlock) blockType() string { return "toolResult" }

// ChatMessage is one conversational turn. Content is append-only while a
// stream is running and finalized exactly once at message stop.
type ChatMessage struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        []ContentBlock `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	StopReason     string         `json:"stop_reason,omitempty"`
	ToolCarrier    bool           `json:"tool_carrier,omitempty"`
}

// Text concatenates the message's text blocks.
func (m *ChatMessage) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// ToolUses returns the message's tool invocation blocks in order.
func (m *ChatMessage) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, b := range m.Content {
		if u, ok := b.(ToolUseBlock); ok {
			uses = append(uses, u)
		}
	}
	return uses
}

// blockEnvelope is the persisted form of a ContentBlock: a type discriminant
// plus the variant payload.
type blockEnvelope struct {
	Type       string           `json:"type"`
	Text       *TextBlock       `json:"text,omitempty"`
	Image      *ImageBlock      `json:"image,omitempty"`
	Document   *DocumentBlock   `json:"document,omitempty"`
	ToolUse    *ToolUseBlock    `json:"toolUse,omitempty"`
	ToolResult *ToolResultBlock `json:"toolResult,omitempty"`
}

// MarshalJSON writes Content as tagged envelopes so the union survives a
// round trip through the store.
func (m *ChatMessage) MarshalJSON() ([]byte, error) {
	type alias ChatMessage
	envelopes := make([]blockEnvelope, 0, len(m.Content))
	for _, b := range m.Content {
		env := blockEnvelope{Type: b.blockType()}
		switch v := b.(type) {
		case TextBlock:
			env.Text = &v
		case ImageBlock:
			env.Image = &v
		case DocumentBlock:
			env.Document = &v
		case ToolUseBlock:
			env.ToolUse = &v
		case ToolResultBlock:
			env.ToolResult = &v
		default:
			return nil, fmt.Errorf("unknown content block type %T", b)
		}
		envelopes = append(envelopes, env)
	}
	return json.Marshal(&struct {
		*alias
		Content []blockEnvelope `json:"content"`
	}{alias: (*alias)(m), Content: envelopes})
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias ChatMessage
	aux := struct {
		*alias
		Content []blockEnvelope `json:"content"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Content = make([]ContentBlock, 0, len(aux.Content))
	for _, env := range aux.Content {
		switch {
		case env.Text != nil:
			m.Content = append(m.Content, *env.Text)
		case env.Image != nil:
			m.Content = append(m.Content, *env.Image)
		case env.Document != nil:
			m.Content = append(m.Content, *env.Document)
		case env.ToolUse != nil:
			m.Content = append(m.Content, *env.ToolUse)
		case env.ToolResult != nil:
			m.Content = append(m.Content, *env.ToolResult)
		default:
			return fmt.Errorf("content block %q has no payload", env.Type)
		}
	}
	return nil
}

// Conversation is a stored transcript.
type Conversation struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Messages  []*ChatMessage `json:"messages"`
}

// ConversationMeta is the listing view of a stored conversation.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}
