package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harun/backlog-agent/internal/observability"
	"github.com/harun/backlog-agent/internal/tracing"
	"github.com/harun/backlog-agent/pkg/session"
	"github.com/harun/backlog-agent/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultInstructions seeds every new session as its first system turn.
	DefaultInstructions = "You are an ai assistant that helps users with backlog ideas:\n\n"

	DefaultMaxToolTurns = 10
	DefaultToolTimeout  = 30 * time.Second
)

// State is the processing state of a session.
type State int32

const (
	StateIdle State = iota
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// ID defaults to a random UUID.
	ID       string
	Provider LLMProvider
	// Tools may be nil, in which case no tools are offered to the provider.
	Tools       *toolexecutor.ToolExecutor
	ToolPolicy  *toolexecutor.ToolPolicy
	Model       string
	Temperature float64
	MaxTokens   int
	// Instructions is seeded as the first system turn; empty means none.
	Instructions string
	// MaxMessages bounds the history; 0 means session.DefaultMaxMessages.
	MaxMessages  int
	MaxToolTurns int
	ToolTimeout  time.Duration
	Logger       zerolog.Logger
}

// Session is one conversation between a user and the completion backend.
// Submissions are processed one at a time.
type Session struct {
	id           string
	provider     LLMProvider
	tools        *toolexecutor.ToolExecutor
	toolPolicy   *toolexecutor.ToolPolicy
	model        string
	temperature  float64
	maxTokens    int
	instructions string
	maxToolTurns int
	toolTimeout  time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	history *session.History
	state   atomic.Int32
}

// NewSession creates a session with its instructions already in history.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, &ValidationError{Field: "temperature", Reason: "must be between 0 and 2"}
	}
	if cfg.MaxTokens < 0 {
		return nil, &ValidationError{Field: "max tokens", Reason: "cannot be negative"}
	}
	// the bound must hold the instructions and the message being submitted
	minMessages := 1
	if cfg.Instructions != "" {
		minMessages = 2
	}
	if cfg.MaxMessages > 0 && cfg.MaxMessages < minMessages {
		return nil, &ValidationError{Field: "max messages", Reason: fmt.Sprintf("must be at least %d, got %d", minMessages, cfg.MaxMessages)}
	}

	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	maxToolTurns := cfg.MaxToolTurns
	if maxToolTurns <= 0 {
		maxToolTurns = DefaultMaxToolTurns
	}
	toolTimeout := cfg.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = DefaultToolTimeout
	}

	s := &Session{
		id:           id,
		provider:     cfg.Provider,
		tools:        cfg.Tools,
		toolPolicy:   cfg.ToolPolicy,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		instructions: cfg.Instructions,
		maxToolTurns: maxToolTurns,
		toolTimeout:  toolTimeout,
		logger:       cfg.Logger.With().Str("session_id", id).Logger(),
		history:      session.NewHistory(cfg.MaxMessages),
	}
	s.seed()

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State reports whether a submission is in flight.
func (s *Session) State() State {
	return State(s.state.Load())
}

// History returns a snapshot of the conversation.
func (s *Session) History() []session.Turn {
	return s.history.Snapshot()
}

// ClearHistory drops the conversation and re-seeds the instructions.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Clear()
	s.seed()
	s.logger.Debug().Msg("History cleared")
}

// TrimHistory bounds the conversation to maxMessages turns and returns the
// number of evicted turns.
func (s *Session) TrimHistory(maxMessages int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history.Trim(maxMessages)
}

func (s *Session) seed() {
	if s.instructions != "" {
		s.history.Append(session.SystemTurn(s.instructions))
	}
}

// Submit sends text to the completion backend and returns its reply. Tool
// calls requested by the backend are executed before the reply is produced.
// Backend failures are reported as ErrCompletionFailed; the user turn stays
// in history.
func (s *Session) Submit(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(int32(StateProcessing))
	defer s.state.Store(int32(StateIdle))

	ctx = tracing.NewSubmitContext(ctx, s.id)
	ctx, span := tracing.StartSpan(ctx, "backlog.agent", "agent.submit",
		attribute.String("provider", s.provider.Provider()),
		attribute.String("model", s.model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	s.history.Append(session.UserTurn(text))
	if evicted := s.history.TrimToCapacity(); evicted > 0 {
		logger.Debug().Int("evicted", evicted).Msg("History trimmed")
	}

	reply, err := s.complete(ctx, toMessages(s.history.Snapshot()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordAgentSubmit(false)

		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			logger.Warn().Err(err).Msg("Submission cancelled")
			return "", ctxErr
		}
		logger.Error().Err(err).Msg("Completion failed")
		return "", ErrCompletionFailed
	}

	s.history.Append(session.AssistantTurn(reply))
	observability.RecordAgentSubmit(true)

	return reply, nil
}

// complete runs the tool loop. Tool exchanges live only in the working
// message slice.
func (s *Session) complete(ctx context.Context, messages []AgentMessage) (string, error) {
	tools := s.toolSpecs()

	for turn := 0; turn < s.maxToolTurns; turn++ {
		response, err := s.call(ctx, LLMRequest{
			Model:       s.model,
			Messages:    messages,
			Tools:       tools,
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		})
		if err != nil {
			return "", err
		}

		if len(response.ToolCalls) == 0 {
			return response.Content, nil
		}

		messages = append(messages, AgentMessage{
			Role:      RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})
		for _, call := range response.ToolCalls {
			messages = append(messages, AgentMessage{
				Role:       RoleTool,
				Content:    s.executeTool(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("maximum tool execution turns exceeded (%d)", s.maxToolTurns)
}

func (s *Session) call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "backlog.agent", "agent.completion",
		attribute.String("provider", s.provider.Provider()),
		attribute.Int("messages", len(request.Messages)),
	)
	defer span.End()

	start := time.Now()
	response, err := s.provider.Call(ctx, request)
	observability.RecordCompletion(s.provider.Provider(), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if response == nil {
		return nil, fmt.Errorf("provider %s returned no response", s.provider.Provider())
	}
	if response.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.input_tokens", response.Usage.InputTokens),
			attribute.Int("usage.output_tokens", response.Usage.OutputTokens),
		)
	}
	return response, nil
}

func (s *Session) executeTool(ctx context.Context, call ToolCall) string {
	if s.tools == nil {
		return fmt.Sprintf("Error: tool not available: %s", call.Name)
	}

	result := s.tools.Execute(ctx, call.Name, call.Parameters, &toolexecutor.ExecutionContext{
		SessionKey: s.id,
		Timeout:    s.toolTimeout,
		ToolPolicy: s.toolPolicy,
	})
	if !result.Success {
		return "Error: " + result.Error
	}
	return fmt.Sprintf("%v", result.Output)
}

func (s *Session) toolSpecs() []ToolSpec {
	if s.tools == nil {
		return nil
	}

	defs := s.tools.Definitions(s.toolPolicy)
	specs := make([]ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: toolexecutor.InputSchema(def),
		})
	}
	return specs
}

func toMessages(turns []session.Turn) []AgentMessage {
	messages := make([]AgentMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, AgentMessage{Role: string(turn.Role), Content: turn.Content})
	}
	return messages
}
