package ai

import (
	"context"
	"math"

	"github.com/kinship-crm/kinship/pkg/loader"
)

// ToolHandler executes a tool call. arguments holds the JSON-encoded
// arguments chosen by the model.
type ToolHandler func(ctx context.Context, arguments string) (string, error)

// Tool is a function the model may call while answering a chat, such as a
// person lookup. Parameters is a JSON schema.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     ToolHandler
}

// ChatMessage is a single turn of an assistant conversation. Role is
// "user" or "assistant".
type ChatMessage struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

// GenerateOptions tune a single request. Zero values fall back to the
// client's configured model and the provider's defaults.
type GenerateOptions struct {
	Model         string
	SystemPrompts []string
	Temperature   float64
	Thinking      string // reasoning effort, empty disables it
}

// ModelMetrics counts tokens and time spent by a client since its last reset.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// Add accumulates m into the receiver and recomputes the throughput.
func (a *ModelMetrics) Add(m ModelMetrics) {
	a.InputTokens += m.InputTokens
	a.OutputTokens += m.OutputTokens
	a.TotalTokens += m.TotalTokens
	a.DurationMs += m.DurationMs
	if a.DurationMs > 0 {
		tps := float64(a.TotalTokens) * 1000.0 / float64(a.DurationMs)
		a.TokenPerSecond = float32(math.Round(tps*100) / 100)
	}
}

type GenerateOption func(*GenerateOptions)

// Apply resolves opts on top of the receiver.
func (o GenerateOptions) Apply(opts ...GenerateOption) GenerateOptions {
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts replaces the system prompts sent before the messages.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature sets the sampling temperature. Extraction prompts use a
// low value so repeated imports of the same text agree.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// Client is the set of model operations the assistant features rely on.
// Implementations live in the openai and ollama subpackages.
type Client interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	// GenerateCompletionWithFormat asks for output matching the JSON schema
	// of out and unmarshals the answer into it.
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	GenerateChat(
		ctx context.Context,
		messages []ChatMessage,
		opts ...GenerateOption,
	) (string, error)
	// GenerateChatWithTools runs tool calls until the model answers without
	// one, bounded by MaxToolRounds.
	GenerateChatWithTools(
		ctx context.Context,
		messages []ChatMessage,
		tools []Tool,
		opts ...GenerateOption,
	) (string, error)

	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateImageDescription(
		ctx context.Context,
		prompt string,
		image loader.Base64,
	) (string, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}

// MaxToolRounds bounds the call/answer loop of GenerateChatWithTools.
const MaxToolRounds = 8

// EmbeddingDimensions is the width of the person embedding column.
const EmbeddingDimensions = 1024
