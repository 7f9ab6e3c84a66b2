package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultModel = openai.GPT4oMini

	// maxToolRounds caps nested tool-call iterations within one Invoke.
	maxToolRounds = 4
)

// OpenAIClient implements Invoker and Streamer over the OpenAI chat API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client for the given API key. Model may be empty
// to use the default.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = defaultModel
	}
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAIClientFrom wraps an existing SDK client, for tests against a
// fake server.
func NewOpenAIClientFrom(client *openai.Client, model string) *OpenAIClient {
	if model == "" {
		model = defaultModel
	}
	return &OpenAIClient{client: client, model: model}
}

// Invoke sends the request and resolves nested tool calls until the model
// produces a final answer or the round cap is hit.
func (c *OpenAIClient) Invoke(ctx context.Context, req Request) (*Result, error) {
	messages := buildMessages(req)
	tools, byName := buildTools(req.Tools)

	var used []string
	for round := 0; round < maxToolRounds; round++ {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: float32(req.Temperature),
			MaxTokens:   req.MaxTokens,
			Tools:       tools,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("%w: empty response", ErrUpstream)
		}

		choice := resp.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			return &Result{Text: choice.Message.Content, ToolsUsed: used}, nil
		}

		messages = append(messages, choice.Message)
		for _, call := range choice.Message.ToolCalls {
			used = append(used, call.Function.Name)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    runTool(ctx, byName, call),
			})
		}
	}

	return nil, fmt.Errorf("%w: tool rounds exhausted", ErrUpstream)
}

// InvokeStream streams the answer. Tool calls are not resolved in streaming
// mode; callers wanting tools use Invoke.
func (c *OpenAIClient) InvokeStream(ctx context.Context, req Request, onChunk func(string) error) (*Result, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    buildMessages(req),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = stream.Close() }()

	var full string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full += delta
		if onChunk != nil {
			if err := onChunk(delta); err != nil {
				return nil, err
			}
		}
	}
	return &Result{Text: full}, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Input,
	})
	return messages
}

func buildTools(tools []Tool) ([]openai.Tool, map[string]Tool) {
	if len(tools) == 0 {
		return nil, nil
	}
	defs := make([]openai.Tool, 0, len(tools))
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Def.Name] = t
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Def.Name,
				Description: t.Def.Description,
				Parameters:  t.Def.Parameters,
			},
		})
	}
	return defs, byName
}

// runTool executes one tool call; failures become tool output so the model
// can recover in the next round instead of aborting the exchange.
func runTool(ctx context.Context, byName map[string]Tool, call openai.ToolCall) string {
	tool, ok := byName[call.Function.Name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.Function.Name)
	}
	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return fmt.Sprintf("error: bad arguments: %v", err)
		}
	}
	out, err := tool.Run(ctx, args)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return out
}
