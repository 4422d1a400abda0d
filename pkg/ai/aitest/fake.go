// Package aitest provides a scripted ai.Client for tests.
package aitest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/loader"
)

// ErrNoResponse is returned when a call has no scripted response.
var ErrNoResponse = errors.New("aitest: no scripted response")

// Fake is an ai.Client whose answers are set up front.
//
// Structured responses are keyed by the schema name passed to
// GenerateCompletionWithFormat and are marshalled into out.
type Fake struct {
	mu sync.Mutex

	Structured  map[string]any
	Completion  string
	ChatReply   string
	Description string
	Embeddings  map[string][]float32
	Err         error

	// ToolCalls are executed in order by GenerateChatWithTools before the
	// reply is returned. Each entry is {tool name, JSON arguments}.
	ToolCalls [][2]string

	Prompts     []string
	ToolResults []string
	Images      []loader.Base64
}

// GenerateCompletion returns Completion.
func (f *Fake) GenerateCompletion(_ context.Context, prompt string, _ ...ai.GenerateOption) (string, error) {
	f.record(prompt)
	return f.Completion, f.Err
}

// GenerateCompletionWithFormat copies Structured[name] into out.
func (f *Fake) GenerateCompletionWithFormat(_ context.Context, name, _ string, prompt string, out any, _ ...ai.GenerateOption) error {
	f.record(prompt)
	if f.Err != nil {
		return f.Err
	}
	v, ok := f.Structured[name]
	if !ok {
		return ErrNoResponse
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// GenerateChat returns ChatReply.
func (f *Fake) GenerateChat(_ context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	f.recordChat(messages, opts)
	return f.ChatReply, f.Err
}

// GenerateChatWithTools runs ToolCalls against tools and returns ChatReply.
func (f *Fake) GenerateChatWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool, opts ...ai.GenerateOption) (string, error) {
	f.recordChat(messages, opts)
	if f.Err != nil {
		return "", f.Err
	}
	for _, call := range f.ToolCalls {
		var handler ai.ToolHandler
		for _, t := range tools {
			if t.Name == call[0] {
				handler = t.Handler
			}
		}
		if handler == nil {
			return "", errors.New("aitest: unknown tool " + call[0])
		}
		res, err := handler(ctx, call[1])
		if err != nil {
			return "", err
		}
		f.mu.Lock()
		f.ToolResults = append(f.ToolResults, res)
		f.mu.Unlock()
	}
	return f.ChatReply, nil
}

// GenerateEmbedding returns Embeddings[input] or a zero vector.
func (f *Fake) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.Embeddings[string(input)]; ok {
		return v, nil
	}
	return make([]float32, ai.EmbeddingDimensions), nil
}

// GenerateImageDescription returns Description.
func (f *Fake) GenerateImageDescription(_ context.Context, prompt string, image loader.Base64) (string, error) {
	f.record(prompt)
	f.mu.Lock()
	f.Images = append(f.Images, image)
	f.mu.Unlock()
	return f.Description, f.Err
}

// ResetMetrics is a no-op.
func (f *Fake) ResetMetrics() {}

// GetMetrics returns zero metrics.
func (f *Fake) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func (f *Fake) record(prompt string) {
	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt)
	f.mu.Unlock()
}

func (f *Fake) recordChat(messages []ai.ChatMessage, opts []ai.GenerateOption) {
	o := ai.GenerateOptions{}.Apply(opts...)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, o.SystemPrompts...)
	for _, m := range messages {
		f.Prompts = append(f.Prompts, m.Message)
	}
}

var _ ai.Client = (*Fake)(nil)
