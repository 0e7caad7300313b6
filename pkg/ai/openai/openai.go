package openai

import (
	"sync"

	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GraphOpenAIClient talks to an OpenAI compatible chat completions API.
// Any server speaking that protocol works, including Ollama's /v1 endpoint.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	chatModel   string
	chatURL     string
	temperature float64
	thinking    string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewGraphOpenAIClientParams configures a GraphOpenAIClient.
//
// ChatURL may be empty to use the official OpenAI endpoint.
type NewGraphOpenAIClientParams struct {
	ChatModel   string
	ChatURL     string
	ChatKey     string
	Temperature float64
	Thinking    string
}

// NewGraphOpenAIClient creates a client for the given endpoint.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		ChatModel: "gpt-4o",
//		ChatKey:   os.Getenv("AI_CHAT_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	return &GraphOpenAIClient{
		chatModel:   params.ChatModel,
		chatURL:     params.ChatURL,
		temperature: params.Temperature,
		thinking:    params.Thinking,

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient: newOpenaiClient(params.ChatURL, params.ChatKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
	extra ...option.RequestOption,
) *openai.Client {
	if apiKey == "" {
		// Local OpenAI compatible servers usually accept any key.
		apiKey = "none"
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	options = append(options, extra...)

	client := openai.NewClient(options...)

	return &client
}
