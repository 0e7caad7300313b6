package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

const defaultMaxToolRounds = 20

func toOpenAIMessages(systemPrompts []string, messages []ai.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(systemPrompts)+len(messages))
	for _, message := range systemPrompts {
		msgs = append(msgs, openai.SystemMessage(message))
	}
	for _, message := range messages {
		switch message.Role {
		case ai.RoleUser:
			msgs = append(msgs, openai.UserMessage(message.Message))
		case ai.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(message.Message))
		}
	}
	return msgs
}

func toOpenAITools(tools []ai.Tool) []openai.ChatCompletionToolUnionParam {
	openaiTools := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		openaiTools[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  tool.Parameters,
		})
	}
	return openaiTools
}

func findHandler(tools []ai.Tool, name string) ai.ToolHandler {
	for _, tool := range tools {
		if tool.Name == name {
			return tool.Handler
		}
	}
	return nil
}

// GenerateChatWithTools sends a multi-turn conversation with tools that the model can call.
// Tool calls are executed in the order the model requested them and their results fed back
// until the model produces a final response without tool calls. The last allowed round
// (20 unless overridden) is sent with tool_choice "none".
func (c *GraphOpenAIClient) GenerateChatWithTools(
	ctx context.Context,
	messages []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (string, error) {
	client := c.ChatClient

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:         c.chatModel,
		SystemPrompts: []string{},
		Temperature:   c.temperature,
		Thinking:      c.thinking,
		MaxToolRounds: defaultMaxToolRounds,
	}, opts...)

	if options.MaxToolRounds < 1 {
		options.MaxToolRounds = 1
	}

	msgs := toOpenAIMessages(options.SystemPrompts, messages)
	openaiTools := toOpenAITools(tools)

	for round := range options.MaxToolRounds {
		body := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(options.Model),
			Messages:    msgs,
			Temperature: openai.Float(options.Temperature),
		}
		if len(openaiTools) > 0 {
			body.Tools = openaiTools
			if round == options.MaxToolRounds-1 {
				// Last round: the model has to answer with text.
				body.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
			}
		}

		if options.Thinking != "" {
			// Needed fix for gpt-5 models as they dont support temperature other than 1.0 when reasoning is enabled
			if c.chatURL == "" {
				body.Temperature = openai.Float(1.0)
			}
			body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
		}

		start := time.Now()
		response, err := client.Chat.Completions.New(ctx, body)
		if err != nil {
			return "", err
		}
		duration := time.Since(start).Milliseconds()

		if len(response.Choices) == 0 {
			return "", fmt.Errorf("no choices in response from model")
		}
		message := response.Choices[0].Message

		c.modifyMetrics(ai.ModelMetrics{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
			TotalTokens:  int(response.Usage.TotalTokens),
			DurationMs:   duration,
			Requests:     1,
			ToolCalls:    len(message.ToolCalls),
		})

		if len(message.ToolCalls) == 0 {
			return message.Content, nil
		}

		msgs = append(msgs, message.ToParam())

		for _, tc := range message.ToolCalls {
			ftc := tc.AsFunction()

			handler := findHandler(tools, ftc.Function.Name)
			if handler == nil {
				return "", fmt.Errorf("no handler found for tool: %s", ftc.Function.Name)
			}

			logger.Debug("[Tool] call", "tool", ftc.Function.Name, "args", ftc.Function.Arguments)
			result, err := handler(ctx, ftc.Function.Arguments)
			if err != nil {
				return "", fmt.Errorf("tool %s failed: %w", ftc.Function.Name, err)
			}

			msgs = append(msgs, openai.ToolMessage(result, ftc.ID))
		}
	}

	return "", fmt.Errorf("max tool rounds (%d) exceeded", options.MaxToolRounds)
}
