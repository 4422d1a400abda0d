package openai

import (
	"sync"
	"time"

	"github.com/kinship-crm/kinship/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// Client implements ai.Client on top of the OpenAI API or any compatible
// endpoint. Chat, embedding and vision requests can go to different
// endpoints.
//
// A Client should be created using NewClient.
type Client struct {
	chatModel       string
	extractionModel string
	embeddingModel  string
	imageModel      string

	chatURL string
	timeout time.Duration

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
	ImageClient     *openai.Client
}

// NewClientParams configures a Client.
//
// ChatModel answers chats and free-form completions, ExtractionModel the
// structured extraction requests. An empty key leaves that endpoint
// unconfigured.
type NewClientParams struct {
	ChatModel       string
	ExtractionModel string
	EmbeddingModel  string
	ImageModel      string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string
	ImageURL     string
	ImageKey     string

	MaxConcurrentRequests int64
	Timeout               time.Duration
}

// NewClient creates and returns a Client.
//
// Example:
//
//	client := openai.NewClient(openai.NewClientParams{
//		ChatModel:       "gpt-4o-mini",
//		ExtractionModel: "gpt-4o-mini",
//		EmbeddingModel:  "text-embedding-3-small",
//		ChatKey:         os.Getenv("AI_CHAT_KEY"),
//		EmbeddingKey:    os.Getenv("AI_EMBED_KEY"),
//	})
func NewClient(params NewClientParams) *Client {
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 4
	}
	if params.Timeout <= 0 {
		params.Timeout = 2 * time.Minute
	}
	if params.ExtractionModel == "" {
		params.ExtractionModel = params.ChatModel
	}

	return &Client{
		chatModel:       params.ChatModel,
		extractionModel: params.ExtractionModel,
		embeddingModel:  params.EmbeddingModel,
		imageModel:      params.ImageModel,

		chatURL: params.ChatURL,
		timeout: params.Timeout,

		reqLock: semaphore.NewWeighted(params.MaxConcurrentRequests),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
		ImageClient:     newOpenaiClient(params.ImageURL, params.ImageKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// ResetMetrics clears all accumulated token and timing metrics.
func (c *Client) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

// GetMetrics returns the metrics accumulated since the last reset.
func (c *Client) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *Client) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.Add(m)
}

func usageMetrics(u openai.CompletionUsage, start time.Time) ai.ModelMetrics {
	return ai.ModelMetrics{
		InputTokens:  int(u.PromptTokens),
		OutputTokens: int(u.CompletionTokens),
		TotalTokens:  int(u.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	}
}

var _ ai.Client = (*Client)(nil)
