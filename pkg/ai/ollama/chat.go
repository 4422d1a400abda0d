package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/logger"

	"github.com/ollama/ollama/api"
)

func (c *Client) options(model string, temperature float64, opts []ai.GenerateOption) ai.GenerateOptions {
	return ai.GenerateOptions{Model: model, Temperature: temperature}.Apply(opts...)
}

func messages(system []string, history []ai.ChatMessage) []api.Message {
	msgs := make([]api.Message, 0, len(system)+len(history))
	for _, sys := range system {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	for _, m := range history {
		role := m.Role
		if role == "" {
			role = "user"
		}
		msgs = append(msgs, api.Message{Role: role, Content: m.Message})
	}
	return msgs
}

func (c *Client) request(options ai.GenerateOptions, msgs []api.Message) *api.ChatRequest {
	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}

	var prompt strings.Builder
	for _, m := range msgs {
		prompt.WriteString(m.Content)
		prompt.WriteByte('\n')
	}
	if n := ai.ContextWindow(prompt.String()); n > 0 {
		req.Options["num_ctx"] = n
	}
	return req
}

func (c *Client) chat(ctx context.Context, req *api.ChatRequest) (api.Message, error) {
	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return api.Message{}, err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(rCtx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		final.Message.ToolCalls = append(final.Message.ToolCalls, cr.Message.ToolCalls...)
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return api.Message{}, err
	}
	c.modifyMetrics(final.Metrics)

	final.Message.Role = "assistant"
	return final.Message, nil
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *Client) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := c.options(c.chatModel, 0.3, opts)
	req := c.request(options, messages(options.SystemPrompts, []ai.ChatMessage{{Role: "user", Message: prompt}}))

	msg, err := c.chat(ctx, req)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *Client) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	rv := reflect.ValueOf(out)
	if out == nil || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	format, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}

	options := c.options(c.extractionModel, 0.1, opts)
	req := c.request(options, messages(options.SystemPrompts, []ai.ChatMessage{{Role: "user", Message: prompt}}))
	req.Format = json.RawMessage(format)

	msg, err := c.chat(ctx, req)
	if err != nil {
		return err
	}
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("empty response from model for %s", name)
	}
	return ai.UnmarshalFlexible(msg.Content, out)
}

// GenerateChat sends a multi-turn conversation and returns assistant text.
func (c *Client) GenerateChat(
	ctx context.Context,
	history []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := c.options(c.chatModel, 0.2, opts)
	msg, err := c.chat(ctx, c.request(options, messages(options.SystemPrompts, history)))
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// GenerateChatWithTools sends a multi-turn conversation with tools that the
// model can call. Tool calls are executed and their results fed back until
// the model answers without one or ai.MaxToolRounds is reached.
func (c *Client) GenerateChatWithTools(
	ctx context.Context,
	history []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (string, error) {
	options := c.options(c.chatModel, 0.2, opts)
	msgs := messages(options.SystemPrompts, history)
	ollamaTools := convertTools(tools)

	for range ai.MaxToolRounds {
		req := c.request(options, msgs)
		req.Tools = ollamaTools

		msg, err := c.chat(ctx, req)
		if err != nil {
			return "", err
		}
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}
		msgs = append(msgs, msg)

		for _, tc := range msg.ToolCalls {
			var handler ai.ToolHandler
			for _, tool := range tools {
				if tool.Name == tc.Function.Name {
					handler = tool.Handler
					break
				}
			}
			if handler == nil {
				return "", fmt.Errorf("no handler found for tool: %s", tc.Function.Name)
			}

			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return "", fmt.Errorf("failed to marshal tool arguments: %w", err)
			}

			logger.Debug("[AI] tool call", "tool", tc.Function.Name)
			result, err := handler(ctx, string(args))
			if err != nil {
				return "", fmt.Errorf("tool %s failed: %w", tc.Function.Name, err)
			}
			msgs = append(msgs, api.Message{
				Role:     "tool",
				Content:  result,
				ToolName: tc.Function.Name,
			})
		}
	}

	return "", fmt.Errorf("max tool rounds (%d) exceeded", ai.MaxToolRounds)
}

func convertTools(tools []ai.Tool) api.Tools {
	out := make(api.Tools, len(tools))
	for i, tool := range tools {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   []string{},
			Properties: map[string]api.ToolProperty{},
		}

		if props, ok := tool.Parameters["properties"].(map[string]any); ok {
			for name, prop := range props {
				propMap, ok := prop.(map[string]any)
				if !ok {
					continue
				}
				tp := api.ToolProperty{}
				if t, ok := propMap["type"].(string); ok {
					tp.Type = api.PropertyType([]string{t})
				}
				if desc, ok := propMap["description"].(string); ok {
					tp.Description = desc
				}
				if enum, ok := propMap["enum"].([]any); ok {
					tp.Enum = enum
				}
				params.Properties[name] = tp
			}
		}
		switch req := tool.Parameters["required"].(type) {
		case []string:
			params.Required = req
		case []any:
			for _, v := range req {
				if s, ok := v.(string); ok {
					params.Required = append(params.Required, s)
				}
			}
		}

		out[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return out
}
