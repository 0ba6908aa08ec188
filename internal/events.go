package internal

// StreamEvent is one item of the typed event sequence a streaming invocation
// produces. Every event carries the request id it belongs to; consumers drop
// events whose id is not the one they are tracking.
type StreamEvent interface {
	RequestID() string
	streamEvent()
}

type streamMeta struct {
	Req string `json:"requestId"`
}

func (m streamMeta) RequestID() string { return m.Req }
func (streamMeta) streamEvent()        {}

type MessageStartEvent struct {
	streamMeta
	Role string `json:"role"`
}

// ContentBlockStartEvent opens a block at Index. ToolUseID/ToolName are set
// only when the block is a tool invocation.
type ContentBlockStartEvent struct {
	streamMeta
	Index     int    `json:"contentBlockIndex"`
	ToolUseID string `json:"toolUseId,omitempty"`
	ToolName  string `json:"toolName,omitempty"`
}

// ContentBlockDeltaEvent carries either a text delta or a raw tool-input
// fragment for the block at Index. Fragments are not valid JSON on their own.
type ContentBlockDeltaEvent struct {
	streamMeta
	Index     int    `json:"contentBlockIndex"`
	Text      string `json:"text,omitempty"`
	ToolInput string `json:"toolInput,omitempty"`
	IsTool    bool   `json:"isTool,omitempty"`
}

type ContentBlockStopEvent struct {
	streamMeta
	Index int `json:"contentBlockIndex"`
}

type MessageStopEvent struct {
	streamMeta
	StopReason string `json:"stopReason"`
}

// TokenUsage mirrors the provider's usage accounting.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

type MetadataEvent struct {
	streamMeta
	Usage     TokenUsage `json:"usage"`
	LatencyMs int64      `json:"latencyMs,omitempty"`
}

type ErrorEvent struct {
	streamMeta
	Message string `json:"message"`
}

func newStreamMeta(requestID string) streamMeta { return streamMeta{Req: requestID} }

// EventSink consumes stream events as they arrive.
type EventSink func(StreamEvent)
