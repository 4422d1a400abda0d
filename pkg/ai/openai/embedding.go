package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kinship-crm/kinship/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// GenerateEmbedding creates a vector embedding for input. The vector is
// truncated or zero-padded to ai.EmbeddingDimensions so it always fits the
// embedding column; blank input yields the zero vector without a request.
func (c *Client) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	dim := ai.EmbeddingDimensions
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, dim), nil
	}
	if c.EmbeddingClient == nil {
		return nil, errors.New("openai: embedding endpoint is not configured")
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	body := openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{string(input)}},
		Model:      c.embeddingModel,
		Dimensions: openai.Int(int64(dim)),
	}

	start := time.Now()
	response, err := c.EmbeddingClient.Embeddings.New(rCtx, body)
	if err != nil {
		return nil, err
	}
	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != 1 {
		return nil, fmt.Errorf("unexpected embedding result size: got %d want 1", len(response.Data))
	}

	vec := make([]float32, dim)
	for i, v := range response.Data[0].Embedding {
		if i >= dim {
			break
		}
		vec[i] = float32(v)
	}
	return vec, nil
}
