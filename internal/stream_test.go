package internal

import (
	"testing"
	"time"
)

func newStreamingMessage() *ChatMessage {
	return &ChatMessage{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Role:           RoleAssistant,
		Timestamp:      time.Now(),
	}
}

func TestStreamControllerAccumulatesText(t *testing.T) {
	controller := NewStreamController(nil)
	message := newStreamingMessage()
	controller.Track("req-1", message)

	// 1. Two deltas for the same block append in order.
	controller.HandleEvent(MessageStartEvent{streamMeta: newStreamMeta("req-1"), Role: RoleAssistant})
	controller.HandleEvent(ContentBlockStartEvent{streamMeta: newStreamMeta("req-1"), Index: 0})
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 0, Text: "a"})
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 0, Text: "b"})
	controller.HandleEvent(ContentBlockStopEvent{streamMeta: newStreamMeta("req-1"), Index: 0})
	controller.HandleEvent(MessageStopEvent{streamMeta: newStreamMeta("req-1"), StopReason: StopEndTurn})

	if len(message.Content) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(message.Content))
	}
	text, ok := message.Content[0].(TextBlock)
	if !ok {
		t.Fatalf("expected text block, got %T", message.Content[0])
	}
	if text.Text != "ab" {
		t.Errorf("expected accumulated text %q, got %q", "ab", text.Text)
	}
	if message.StopReason != StopEndTurn {
		t.Errorf("expected stop reason %q, got %q", StopEndTurn, message.StopReason)
	}

	// 2. Finalization clears the active stream.
	if got := controller.ActiveRequestID(); got != "" {
		t.Errorf("expected no active request after finalization, got %q", got)
	}
}

func TestStreamControllerPadsMissingIndexes(t *testing.T) {
	controller := NewStreamController(nil)
	message := newStreamingMessage()
	controller.Track("req-1", message)

	// A start at index 2 fills indexes 0 and 1 with empty text blocks.
	controller.HandleEvent(ContentBlockStartEvent{streamMeta: newStreamMeta("req-1"), Index: 2})
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 2, Text: "tail"})
	controller.HandleEvent(MessageStopEvent{streamMeta: newStreamMeta("req-1"), StopReason: StopEndTurn})

	if len(message.Content) != 3 {
		t.Fatalf("expected 3 content blocks, got %d", len(message.Content))
	}
	for i := 0; i < 2; i++ {
		text, ok := message.Content[i].(TextBlock)
		if !ok || text.Text != "" {
			t.Errorf("expected empty text block at index %d, got %#v", i, message.Content[i])
		}
	}
	if text := message.Content[2].(TextBlock); text.Text != "tail" {
		t.Errorf("expected %q at index 2, got %q", "tail", text.Text)
	}
}

func TestStreamControllerParsesToolInput(t *testing.T) {
	controller := NewStreamController(nil)
	message := newStreamingMessage()
	controller.Track("req-1", message)

	// 1. Tool block opens with a pending input, fragments arrive split
	//    mid-token.
	controller.HandleEvent(ContentBlockStartEvent{streamMeta: newStreamMeta("req-1"), Index: 0, ToolUseID: "tu-1", ToolName: "read_file"})
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 0, IsTool: true, ToolInput: `{"pa`})
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 0, IsTool: true, ToolInput: `th":"/tmp/x"}`})

	// 2. The input stays pending until messageStop.
	if block := message.Content[0].(ToolUseBlock); block.Input != nil {
		t.Fatalf("expected pending tool input before stop, got %v", block.Input)
	}

	controller.HandleEvent(MessageStopEvent{streamMeta: newStreamMeta("req-1"), StopReason: StopToolUse})

	block, ok := message.Content[0].(ToolUseBlock)
	if !ok {
		t.Fatalf("expected tool-use block, got %T", message.Content[0])
	}
	if block.ToolUseID != "tu-1" || block.Name != "read_file" {
		t.Errorf("unexpected tool identity: %+v", block)
	}
	if got := block.Input["path"]; got != "/tmp/x" {
		t.Errorf("expected parsed path %q, got %v", "/tmp/x", got)
	}
	if message.StopReason != StopToolUse {
		t.Errorf("expected stop reason %q, got %q", StopToolUse, message.StopReason)
	}
}

func TestStreamControllerToolInputParseFallback(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
	}{
		{"truncated json", `{"path": "/tm`},
		{"plain text", `not json at all`},
		{"json null", `null`},
		{"empty buffer", ``},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			controller := NewStreamController(nil)
			message := newStreamingMessage()
			controller.Track("req-1", message)

			controller.HandleEvent(ContentBlockStartEvent{streamMeta: newStreamMeta("req-1"), Index: 0, ToolUseID: "tu-1", ToolName: "read_file"})
			if tc.fragment != "" {
				controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 0, IsTool: true, ToolInput: tc.fragment})
			}
			controller.HandleEvent(MessageStopEvent{streamMeta: newStreamMeta("req-1"), StopReason: StopToolUse})

			block := message.Content[0].(ToolUseBlock)
			if len(block.Input) != 1 {
				t.Fatalf("expected single raw entry, got %v", block.Input)
			}
			if got := block.Input["raw"]; got != tc.fragment {
				t.Errorf("expected raw fallback %q, got %v", tc.fragment, got)
			}
		})
	}
}

func TestStreamControllerErrorReplacesContent(t *testing.T) {
	var finalized *ChatMessage
	controller := NewStreamController(func(m *ChatMessage) { finalized = m })
	message := newStreamingMessage()
	controller.Track("req-1", message)

	// 1. Partial text already streamed in.
	controller.HandleEvent(ContentBlockStartEvent{streamMeta: newStreamMeta("req-1"), Index: 0})
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 0, Text: "partial answ"})

	// 2. A stream error replaces everything with one visible error block.
	controller.HandleEvent(ErrorEvent{streamMeta: newStreamMeta("req-1"), Message: "model request returned 429"})

	if len(message.Content) != 1 {
		t.Fatalf("expected single error block, got %d blocks", len(message.Content))
	}
	text, ok := message.Content[0].(TextBlock)
	if !ok {
		t.Fatalf("expected text block, got %T", message.Content[0])
	}
	if text.Text != "Error: model request returned 429" {
		t.Errorf("unexpected error text %q", text.Text)
	}
	if message.StopReason != StopError {
		t.Errorf("expected stop reason %q, got %q", StopError, message.StopReason)
	}
	if finalized != message {
		t.Error("expected finalize hook to fire with the message")
	}
	if got := controller.ActiveRequestID(); got != "" {
		t.Errorf("expected stream cleared after error, got %q", got)
	}
}

func TestStreamControllerIgnoresOtherRequests(t *testing.T) {
	controller := NewStreamController(nil)
	message := newStreamingMessage()
	controller.Track("req-2", message)

	// Events from an older request must not touch the tracked message.
	controller.HandleEvent(ContentBlockStartEvent{streamMeta: newStreamMeta("req-1"), Index: 0})
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 0, Text: "stale"})
	controller.HandleEvent(MessageStopEvent{streamMeta: newStreamMeta("req-1"), StopReason: StopEndTurn})

	if len(message.Content) != 0 {
		t.Errorf("expected untouched content, got %v", message.Content)
	}
	if message.StopReason != "" {
		t.Errorf("expected no stop reason, got %q", message.StopReason)
	}
	if got := controller.ActiveRequestID(); got != "req-2" {
		t.Errorf("expected req-2 still active, got %q", got)
	}
}

func TestStreamControllerIgnoresEventsAfterFinalize(t *testing.T) {
	controller := NewStreamController(nil)
	message := newStreamingMessage()
	controller.Track("req-1", message)

	controller.HandleEvent(ContentBlockStartEvent{streamMeta: newStreamMeta("req-1"), Index: 0})
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 0, Text: "done"})
	controller.HandleEvent(MessageStopEvent{streamMeta: newStreamMeta("req-1"), StopReason: StopEndTurn})

	// Late events for the finalized request are dropped, including the
	// trailing metadata frame.
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-1"), Index: 0, Text: " and more"})
	controller.HandleEvent(MetadataEvent{streamMeta: newStreamMeta("req-1"), Usage: TokenUsage{InputTokens: 10}})

	if text := message.Content[0].(TextBlock); text.Text != "done" {
		t.Errorf("expected text unchanged after finalize, got %q", text.Text)
	}
}

func TestStreamControllerFinalizeHookCanTrackNext(t *testing.T) {
	next := newStreamingMessage()
	var controller *StreamController
	controller = NewStreamController(func(m *ChatMessage) {
		// Simulates a tool round: the hook immediately arms the follow-up
		// stream.
		controller.Track("req-2", next)
	})
	message := newStreamingMessage()
	controller.Track("req-1", message)

	controller.HandleEvent(MessageStopEvent{streamMeta: newStreamMeta("req-1"), StopReason: StopToolUse})

	if got := controller.ActiveRequestID(); got != "req-2" {
		t.Fatalf("expected follow-up stream active, got %q", got)
	}
	controller.HandleEvent(ContentBlockStartEvent{streamMeta: newStreamMeta("req-2"), Index: 0})
	controller.HandleEvent(ContentBlockDeltaEvent{streamMeta: newStreamMeta("req-2"), Index: 0, Text: "round two"})
	if text := next.Content[0].(TextBlock); text.Text != "round two" {
		t.Errorf("expected follow-up message to accumulate, got %q", text.Text)
	}
}
