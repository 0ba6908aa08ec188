package internal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const (
	defaultMaxTokens = 4096

	// Cross-region inference profile for the default model; the prefix is
	// chosen from the serving region at resolve time.
	defaultModelBase = "anthropic.claude-sonnet-4-20250514-v1:0"
)

// InvokeParams is one streaming request: the history to send and an optional
// system prompt. The history must end with the turn the model should answer,
// never with an in-progress placeholder.
type InvokeParams struct {
	Messages []ChatMessage
	System   string
}

// ModelGateway runs streaming Converse calls against Bedrock. Invoke returns
// a request id immediately and streams in the background; Abort cancels by
// id. Events for a request stop the moment it is aborted.
type ModelGateway struct {
	store    *CredentialStore
	registry *ToolRegistry
	modelID  func() string

	maxTokens int
	httpDo    func(req *http.Request) (*http.Response, error)
	signReq   func(ctx context.Context, creds *Credentials, req *http.Request, bodyHash, region string) error

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewModelGateway wires the gateway to the credential store, the tool
// registry, and a lookup for an explicitly configured model id (may return
// "" for the regional default).
func NewModelGateway(store *CredentialStore, registry *ToolRegistry, modelID func() string) *ModelGateway {
	return &ModelGateway{
		store:     store,
		registry:  registry,
		modelID:   modelID,
		maxTokens: defaultMaxTokens,
		httpDo:    streamHTTPClient.Do,
		signReq:   signConverseRequest,
		active:    make(map[string]context.CancelFunc),
	}
}

// ResolveModelID returns the explicitly configured model id when set, else
// the default model behind the region-appropriate inference profile.
func (g *ModelGateway) ResolveModelID() string {
	if id := g.modelID(); id != "" {
		return id
	}
	return regionDefaultModel(g.store.Region())
}

func regionDefaultModel(region string) string {
	switch {
	case strings.HasPrefix(region, "eu-"):
		return "eu." + defaultModelBase
	case strings.HasPrefix(region, "ap-"):
		return "apac." + defaultModelBase
	default:
		return "us." + defaultModelBase
	}
}

// Invoke starts a streaming call and returns its request id immediately.
// Every event forwarded to sink is tagged with that id. Stream-level failures
// surface as a single ErrorEvent; nothing is reported after an abort.
func (g *ModelGateway) Invoke(params InvokeParams, sink EventSink) string {
	requestID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	g.mu.Lock()
	g.active[requestID] = cancel
	g.mu.Unlock()

	go func() {
		defer g.release(requestID)
		g.streamConverse(ctx, requestID, params, sink)
	}()
	return requestID
}

// Abort cancels the stream for requestID. Returns false when no live handle
// exists, which makes a second abort a no-op.
func (g *ModelGateway) Abort(requestID string) bool {
	g.mu.Lock()
	cancel, ok := g.active[requestID]
	delete(g.active, requestID)
	g.mu.Unlock()
	if ok {
		cancel()
		Log.Debug().Str("requestId", requestID).Msg("stream aborted")
	}
	return ok
}

func (g *ModelGateway) release(requestID string) {
	g.mu.Lock()
	cancel, ok := g.active[requestID]
	delete(g.active, requestID)
	g.mu.Unlock()
	if ok {
		cancel()
	}
}

// emit forwards an event unless the request was cancelled first. The
// cancellation check and the send are what keep aborted streams silent.
func (g *ModelGateway) emit(ctx context.Context, sink EventSink, event StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	sink(event)
	return true
}

func (g *ModelGateway) fail(ctx context.Context, sink EventSink, requestID, message string) {
	g.emit(ctx, sink, ErrorEvent{streamMeta: newStreamMeta(requestID), Message: message})
}

func (g *ModelGateway) streamConverse(ctx context.Context, requestID string, params InvokeParams, sink EventSink) {
	creds := g.store.Get()
	if creds == nil {
		g.fail(ctx, sink, requestID, "not connected")
		return
	}
	region := g.store.Region()
	modelID := g.ResolveModelID()

	request := buildConverseRequest(params.Messages, params.System, g.maxTokens, g.registry.Specs())
	body, err := sonic.Marshal(request)
	if err != nil {
		g.fail(ctx, sink, requestID, fmt.Sprintf("failed to encode request: %v", err))
		return
	}

	endpoint := fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s/converse-stream", region, modelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		g.fail(ctx, sink, requestID, fmt.Sprintf("failed to create request: %v", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/vnd.amazon.eventstream")

	hash := sha256.Sum256(body)
	bodyHash := hex.EncodeToString(hash[:])
	httpReq.Header.Set("X-Amz-Content-Sha256", bodyHash)
	if err := g.signReq(ctx, creds, httpReq, bodyHash, region); err != nil {
		g.fail(ctx, sink, requestID, fmt.Sprintf("failed to sign request: %v", err))
		return
	}

	Log.Debug().Str("requestId", requestID).Str("model", modelID).Str("region", region).Msg("stream starting")
	resp, err := g.httpDo(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		g.fail(ctx, sink, requestID, fmt.Sprintf("model request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		g.fail(ctx, sink, requestID, fmt.Sprintf("model request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
		return
	}

	g.decodeStream(ctx, requestID, resp.Body, sink)
}

func signConverseRequest(ctx context.Context, creds *Credentials, req *http.Request, bodyHash, region string) error {
	signer := v4.NewSigner()
	return signer.SignHTTP(ctx, sdkCredentials(creds), req, bodyHash, "bedrock", region, time.Now())
}

// decodeStream reads event-stream frames until EOF, cancellation, or a
// terminal error. Exactly one ErrorEvent is emitted on failure.
func (g *ModelGateway) decodeStream(ctx context.Context, requestID string, body io.Reader, sink EventSink) {
	decoder := eventstream.NewDecoder()
	payloadBuf := make([]byte, 0, 1024*1024)

	for {
		if ctx.Err() != nil {
			return
		}
		message, err := decoder.Decode(body, payloadBuf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == io.EOF {
				return
			}
			g.fail(ctx, sink, requestID, fmt.Sprintf("stream decode failed: %v", err))
			return
		}

		event, err := parseStreamEvent(requestID, message)
		if err != nil {
			g.fail(ctx, sink, requestID, err.Error())
			return
		}
		if event == nil {
			continue
		}
		if !g.emit(ctx, sink, event) {
			return
		}
	}
}

// parseStreamEvent maps one decoded frame to a typed StreamEvent. Exception
// frames become errors; unrecognized event types are skipped (nil, nil).
func parseStreamEvent(requestID string, message eventstream.Message) (StreamEvent, error) {
	meta := newStreamMeta(requestID)

	if header := message.Headers.Get(":message-type"); header != nil {
		if msgType := header.String(); msgType != "event" {
			excType := msgType
			if excHeader := message.Headers.Get(":exception-type"); excHeader != nil {
				if v := excHeader.String(); v != "" {
					excType = v
				}
			}
			detail := strings.TrimSpace(string(message.Payload))
			var exc exceptionPayload
			if err := sonic.Unmarshal(message.Payload, &exc); err == nil && exc.Message != "" {
				detail = exc.Message
			}
			return nil, fmt.Errorf("stream %s: %s", excType, detail)
		}
	}

	eventHeader := message.Headers.Get(":event-type")
	if eventHeader == nil {
		return nil, nil
	}

	switch eventHeader.String() {
	case "messageStart":
		var p messageStartPayload
		if err := sonic.Unmarshal(message.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad messageStart payload: %w", err)
		}
		return MessageStartEvent{streamMeta: meta, Role: p.Role}, nil

	case "contentBlockStart":
		var p contentBlockStartPayload
		if err := sonic.Unmarshal(message.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad contentBlockStart payload: %w", err)
		}
		event := ContentBlockStartEvent{streamMeta: meta, Index: p.ContentBlockIndex}
		if p.Start.ToolUse != nil {
			event.ToolUseID = p.Start.ToolUse.ToolUseID
			event.ToolName = p.Start.ToolUse.Name
		}
		return event, nil

	case "contentBlockDelta":
		var p contentBlockDeltaPayload
		if err := sonic.Unmarshal(message.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad contentBlockDelta payload: %w", err)
		}
		event := ContentBlockDeltaEvent{streamMeta: meta, Index: p.ContentBlockIndex}
		if p.Delta.ToolUse != nil {
			event.IsTool = true
			event.ToolInput = p.Delta.ToolUse.Input
		} else if p.Delta.Text != nil {
			event.Text = *p.Delta.Text
		}
		return event, nil

	case "contentBlockStop":
		var p contentBlockStopPayload
		if err := sonic.Unmarshal(message.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad contentBlockStop payload: %w", err)
		}
		return ContentBlockStopEvent{streamMeta: meta, Index: p.ContentBlockIndex}, nil

	case "messageStop":
		var p messageStopPayload
		if err := sonic.Unmarshal(message.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad messageStop payload: %w", err)
		}
		return MessageStopEvent{streamMeta: meta, StopReason: p.StopReason}, nil

	case "metadata":
		var p metadataPayload
		if err := sonic.Unmarshal(message.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad metadata payload: %w", err)
		}
		return MetadataEvent{
			streamMeta: meta,
			Usage: TokenUsage{
				InputTokens:  p.Usage.InputTokens,
				OutputTokens: p.Usage.OutputTokens,
				TotalTokens:  p.Usage.TotalTokens,
			},
			LatencyMs: p.Metrics.LatencyMs,
		}, nil

	default:
		Log.Debug().Str("eventType", eventHeader.String()).Msg("skipping unknown stream event")
		return nil, nil
	}
}
