package internal

import (
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

// StreamController assembles the currently streaming assistant message from
// gateway events. It tracks exactly one stream at a time; events tagged with
// any other request id are dropped. All mutation happens in arrival order,
// and the message is finalized exactly once, at messageStop or on a stream
// error.
type StreamController struct {
	mu        sync.Mutex
	requestID string
	message   *ChatMessage
	toolBufs  map[int]*strings.Builder

	onFinalize func(*ChatMessage)
}

// NewStreamController creates a controller. onFinalize runs after every
// finalization — normal or error — with the finished message; the
// controller's own state is already cleared when it fires, so the hook may
// start and track a new stream.
func NewStreamController(onFinalize func(*ChatMessage)) *StreamController {
	return &StreamController{onFinalize: onFinalize}
}

// Track binds the controller to a new stream: events tagged requestID build
// up message from here on.
func (c *StreamController) Track(requestID string, message *ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestID = requestID
	c.message = message
	c.toolBufs = make(map[int]*strings.Builder)
}

// ActiveRequestID returns the id of the stream being assembled, or "".
func (c *StreamController) ActiveRequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID
}

// HandleEvent applies one stream event to the in-progress message.
func (c *StreamController) HandleEvent(event StreamEvent) {
	c.mu.Lock()
	if c.requestID == "" || c.message == nil || event.RequestID() != c.requestID {
		c.mu.Unlock()
		return
	}

	var finalized *ChatMessage
	switch e := event.(type) {
	case MessageStartEvent:
		if e.Role != "" {
			c.message.Role = e.Role
		}

	case ContentBlockStartEvent:
		c.ensureIndexLocked(e.Index)
		if e.ToolUseID != "" || e.ToolName != "" {
			c.message.Content[e.Index] = ToolUseBlock{ToolUseID: e.ToolUseID, Name: e.ToolName}
			c.toolBufs[e.Index] = &strings.Builder{}
		}

	case ContentBlockDeltaEvent:
		c.ensureIndexLocked(e.Index)
		if e.IsTool {
			buf, ok := c.toolBufs[e.Index]
			if !ok {
				buf = &strings.Builder{}
				c.toolBufs[e.Index] = buf
			}
			buf.WriteString(e.ToolInput)
		} else if text, ok := c.message.Content[e.Index].(TextBlock); ok {
			text.Text += e.Text
			c.message.Content[e.Index] = text
		}

	case ContentBlockStopEvent:
		// Nothing to do; tool inputs parse at messageStop.

	case MessageStopEvent:
		finalized = c.finalizeLocked(e.StopReason)

	case ErrorEvent:
		finalized = c.errorLocked(e.Message)

	case MetadataEvent:
		Log.Debug().
			Int("inputTokens", e.Usage.InputTokens).
			Int("outputTokens", e.Usage.OutputTokens).
			Int64("latencyMs", e.LatencyMs).
			Msg("stream metadata")
	}

	hook := c.onFinalize
	c.mu.Unlock()

	if finalized != nil && hook != nil {
		hook(finalized)
	}
}

// ensureIndexLocked pads the content array with empty text blocks until the
// given index exists.
func (c *StreamController) ensureIndexLocked(index int) {
	for len(c.message.Content) <= index {
		c.message.Content = append(c.message.Content, TextBlock{})
	}
}

// finalizeLocked parses accumulated tool-input buffers, stamps the stop
// reason, and clears the streaming state. Buffers that are not valid JSON
// objects fall back to {"raw": buffer} so nothing is lost.
func (c *StreamController) finalizeLocked(stopReason string) *ChatMessage {
	message := c.message
	for index, buf := range c.toolBufs {
		block, ok := message.Content[index].(ToolUseBlock)
		if !ok {
			continue
		}
		raw := buf.String()
		var input map[string]any
		if err := sonic.Unmarshal([]byte(raw), &input); err != nil || input == nil {
			input = map[string]any{"raw": raw}
		}
		block.Input = input
		message.Content[index] = block
	}
	message.StopReason = stopReason
	c.clearLocked()
	return message
}

// errorLocked replaces the in-progress content with a single visible error
// block and finalizes with the error stop reason.
func (c *StreamController) errorLocked(detail string) *ChatMessage {
	message := c.message
	message.Content = []ContentBlock{TextBlock{Text: "Error: " + detail}}
	message.StopReason = StopError
	c.clearLocked()
	return message
}

func (c *StreamController) clearLocked() {
	c.requestID = ""
	c.message = nil
	c.toolBufs = nil
}
