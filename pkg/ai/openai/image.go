package openai

import (
	"context"
	"errors"
	"time"

	"github.com/kinship-crm/kinship/pkg/loader"

	"github.com/openai/openai-go/v3"
)

// GenerateImageDescription sends a vision request with a base64-encoded image
// and returns the model's textual description based on the provided prompt.
func (c *Client) GenerateImageDescription(
	ctx context.Context,
	prompt string,
	image loader.Base64,
) (string, error) {
	if c.ImageClient == nil {
		return "", errors.New("openai: image endpoint is not configured")
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.imageModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: image.DataURL(),
				}),
			}),
		},
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.ImageClient.Chat.Completions.New(rCtx, body)
	if err != nil {
		return "", err
	}
	c.modifyMetrics(usageMetrics(response.Usage, start))

	if len(response.Choices) == 0 {
		return "", errors.New("no choices in response from model")
	}
	return response.Choices[0].Message.Content, nil
}
