package ollama

import (
	"context"
	"encoding/base64"

	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/loader"

	"github.com/ollama/ollama/api"
)

// GenerateImageDescription sends a vision chat request with a base64 image and
// returns the model's textual description.
func (c *Client) GenerateImageDescription(
	ctx context.Context,
	prompt string,
	image loader.Base64,
) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(image.Base64)
	if err != nil {
		return "", err
	}

	req := c.request(ai.GenerateOptions{Model: c.imageModel, Temperature: 0.2}, []api.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Images: []api.ImageData{raw}},
	})

	msg, err := c.chat(ctx, req)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}
