package internal

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxToolRounds bounds how many times one user turn may bounce between the
// model and the tool registry before the loop gives up.
const maxToolRounds = 8

// Invoker starts a streaming model invocation and returns its request id.
// *ModelGateway satisfies it; tests substitute scripted fakes.
type Invoker interface {
	Invoke(params InvokeParams, sink EventSink) string
}

// startTracked invokes the model and binds the resulting request id to the
// stream controller before any event is let through the sink. Without the
// latch, the background stream could emit its first events while the caller
// still holds an unknown request id, and the controller would drop them.
func startTracked(invoker Invoker, controller *StreamController, params InvokeParams, sink EventSink, target *ChatMessage) string {
	var armed sync.WaitGroup
	armed.Add(1)
	gated := func(event StreamEvent) {
		armed.Wait()
		sink(event)
	}
	requestID := invoker.Invoke(params, gated)
	controller.Track(requestID, target)
	armed.Done()
	return requestID
}

// ToolOrchestrator runs the multi-round tool loop. Wired as the stream
// controller's finalize hook, it persists every finalized assistant message;
// when the stop reason requests tool use it executes the requested tools,
// appends the results as a synthetic user turn, and re-invokes the model with
// the extended history. The loop ends on any other stop reason, on a stream
// error, or when the round budget runs out.
type ToolOrchestrator struct {
	registry   *ToolRegistry
	invoker    Invoker
	controller *StreamController
	sink       EventSink
	persist    func(*ChatMessage)

	newID func() string
	now   func() time.Time

	mu        sync.Mutex
	conv      *Conversation
	system    string
	rounds    int
	maxRounds int
}

// NewToolOrchestrator wires the loop's collaborators. persist may be nil when
// nothing durable backs the conversation. sink receives the re-invocation
// stream events; pass the same sink the original send used.
func NewToolOrchestrator(registry *ToolRegistry, invoker Invoker, controller *StreamController, sink EventSink, persist func(*ChatMessage)) *ToolOrchestrator {
	return &ToolOrchestrator{
		registry:   registry,
		invoker:    invoker,
		controller: controller,
		sink:       sink,
		persist:    persist,
		newID:      uuid.NewString,
		now:        time.Now,
		maxRounds:  maxToolRounds,
	}
}

// Begin arms the orchestrator for a fresh user turn: the conversation whose
// state the loop extends, the system prompt to carry through every round, and
// a reset round budget.
func (o *ToolOrchestrator) Begin(conv *Conversation, system string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conv = conv
	o.system = system
	o.rounds = 0
}

// HandleFinalized is the stream controller's finalize hook.
func (o *ToolOrchestrator) HandleFinalized(message *ChatMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.persist != nil {
		o.persist(message)
	}

	if message.StopReason != StopToolUse {
		// Terminal answer (or stream error): the turn is over.
		o.rounds = 0
		return
	}
	if o.conv == nil {
		Log.Warn().Str("message", message.ID).Msg("tool use requested with no active conversation")
		return
	}
	if o.rounds >= o.maxRounds {
		Log.Warn().Int("rounds", o.rounds).Msg("tool round budget exhausted, stopping loop")
		return
	}
	o.rounds++

	uses := message.ToolUses()
	if len(uses) == 0 {
		Log.Warn().Str("message", message.ID).Msg("tool_use stop reason without tool blocks")
		return
	}

	// Execute every requested tool in order; failures come back as error
	// results, never as aborts of the loop.
	results := make([]ContentBlock, 0, len(uses))
	for _, use := range uses {
		result := o.registry.Execute(use.Name, use.Input)
		status := "success"
		if !result.Success {
			status = "error"
		}
		results = append(results, ToolResultBlock{
			ToolUseID: use.ToolUseID,
			Content:   result.Content,
			Status:    status,
		})
	}

	carrier := &ChatMessage{
		ID:             o.newID(),
		ConversationID: o.conv.ID,
		Role:           RoleUser,
		Content:        results,
		Timestamp:      o.now(),
		ToolCarrier:    true,
	}
	o.conv.Messages = append(o.conv.Messages, carrier)
	if o.persist != nil {
		o.persist(carrier)
	}

	// Snapshot the history before appending the next placeholder: the model
	// must see a transcript ending with the tool results, not an empty
	// in-progress message.
	history := make([]ChatMessage, 0, len(o.conv.Messages))
	for _, m := range o.conv.Messages {
		history = append(history, *m)
	}

	placeholder := &ChatMessage{
		ID:             o.newID(),
		ConversationID: o.conv.ID,
		Role:           RoleAssistant,
		Timestamp:      o.now(),
	}
	o.conv.Messages = append(o.conv.Messages, placeholder)

	requestID := startTracked(o.invoker, o.controller, InvokeParams{Messages: history, System: o.system}, o.sink, placeholder)
	Log.Debug().Str("requestId", requestID).Int("round", o.rounds).Msg("tool round re-invoked")
}
